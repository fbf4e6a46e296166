package dispatch

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/JamesPrial/mysql-mcp/internal/config"
)

// StatementArgs is the input of query and execute.
type StatementArgs struct {
	SQL    string `mapstructure:"sql"`
	Params []any  `mapstructure:"params"`
}

// SQLArgs is the input of show_statement and explain.
type SQLArgs struct {
	SQL string `mapstructure:"sql"`
}

// TableArgs is the input of describe_table.
type TableArgs struct {
	Table string `mapstructure:"table"`
}

// ConnectArgs is the input of connect_db.
type ConnectArgs struct {
	config.Source `mapstructure:",squash"`
}

// decodeArgs copies the untyped argument bag into out.
//
// Unknown keys are ignored. A value of the wrong type is an InvalidRequest
// failure; nothing is coerced.
func decodeArgs(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return &Failure{Kind: InternalError, Message: "failed to build argument decoder", Err: err}
	}
	if err := dec.Decode(raw); err != nil {
		return &Failure{Kind: InvalidRequest, Message: fmt.Sprintf("invalid arguments: %v", err), Err: err}
	}
	return nil
}

// normalizeParams checks that every parameter is a scalar and turns
// integral JSON numbers into int64 so they bind as integers.
func normalizeParams(params []any) ([]any, error) {
	if len(params) == 0 {
		return nil, nil
	}

	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, string, bool, int, int32, int64:
			out[i] = v
		case float64:
			if v == math.Trunc(v) && math.Abs(v) <= 1<<53 {
				out[i] = int64(v)
			} else {
				out[i] = v
			}
		default:
			return nil, failuref(InvalidInput, "parameter %d must be a string, number, boolean or null, got %T", i, p)
		}
	}
	return out, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// startsWith is the lexical statement-category check: the trimmed,
// upper-cased text must begin with keyword. Nothing else is parsed.
func startsWith(sql, keyword string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), keyword)
}
