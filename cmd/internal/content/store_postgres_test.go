package content

import (
	"errors"
	"testing"
)

func TestWithSchemaValidatesIdentifier(t *testing.T) {
	t.Parallel()

	for _, schema := range []string{"burrow", "burrow_app", "_private", "s1"} {
		st := &PostgresStore{}
		if err := WithSchema(schema)(st); err != nil {
			t.Fatalf("schema %q rejected: %v", schema, err)
		}
		if st.schema != schema {
			t.Fatalf("schema = %q, want %q", st.schema, schema)
		}
	}

	for _, schema := range []string{"", "   ", "1leading", `bad"quote`, "semi;colon", "sp ace", "dash-ed"} {
		st := &PostgresStore{}
		if err := WithSchema(schema)(st); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("schema %q: err = %v, want ErrInvalidInput", schema, err)
		}
	}
}
