package sqlite

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"modernc.org/sqlite"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

var (
	registerOnce sync.Once
	errRegister  error
)

// registerFunctions installs the text matching functions. The driver keeps
// them process-wide, so they are registered once.
func registerFunctions() error {
	registerOnce.Do(func() {
		if err := sqlite.RegisterDeterministicScalarFunction("mahuta_phrase_prefix", 2, textFunc(domain.MatchPhrasePrefix)); err != nil {
			errRegister = fmt.Errorf("registering mahuta_phrase_prefix: %w", err)
			return
		}
		if err := sqlite.RegisterDeterministicScalarFunction("mahuta_contains", 2, textFunc(domain.ContainsTokens)); err != nil {
			errRegister = fmt.Errorf("registering mahuta_contains: %w", err)
		}
	})
	return errRegister
}

func textFunc(match func(text, query string) bool) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		text, ok1 := asText(args[0])
		query, ok2 := asText(args[1])
		if !ok1 || !ok2 {
			return int64(0), nil
		}
		if match(text, query) {
			return int64(1), nil
		}
		return int64(0), nil
	}
}

func asText(v driver.Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}
