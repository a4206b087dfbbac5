package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("requires name", func(t *testing.T) {
		t.Parallel()
		_, err := NewBuilder("").WithHandler(func(context.Context, json.RawMessage) (Result, error) {
			return Result{}, nil
		}).Build()
		if !errors.Is(err, ErrEmptyName) {
			t.Errorf("Build() error = %v, want ErrEmptyName", err)
		}
	})

	t.Run("requires handler", func(t *testing.T) {
		t.Parallel()
		_, err := NewBuilder("x").Build()
		if !errors.Is(err, ErrNoHandler) {
			t.Errorf("Build() error = %v, want ErrNoHandler", err)
		}
	})

	t.Run("builds read-only tool", func(t *testing.T) {
		t.Parallel()
		tl := NewBuilder("current_time").
			WithDescription("now").
			ReadOnly().
			WithHandler(func(context.Context, json.RawMessage) (Result, error) {
				return TextResult("12:00"), nil
			}).
			MustBuild()

		if tl.Name() != "current_time" || tl.Description() != "now" || !tl.ReadOnly() {
			t.Errorf("unexpected tool %s/%s/%v", tl.Name(), tl.Description(), tl.ReadOnly())
		}
		res, err := tl.Execute(context.Background(), nil)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if res.OutputString() != "12:00" {
			t.Errorf("OutputString() = %s, want 12:00", res.OutputString())
		}
	})
}

func TestDefinition_ExecuteValidatesInput(t *testing.T) {
	t.Parallel()

	tl := NewBuilder("add").
		WithInputSchema(ObjectSchema(map[string]json.RawMessage{
			"a": json.RawMessage(`{"type":"number"}`),
			"b": json.RawMessage(`{"type":"number"}`),
		}, []string{"a", "b"})).
		WithHandler(func(context.Context, json.RawMessage) (Result, error) {
			return NewResult(json.RawMessage(`3`)), nil
		}).
		MustBuild()

	_, err := tl.Execute(context.Background(), json.RawMessage(`{"a":1}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Execute() error = %v, want ErrInvalidInput", err)
	}
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("Execute() error should also match ErrToolFailed")
	}
	var te *Error
	if !errors.As(err, &te) || te.Tool != "add" {
		t.Errorf("Execute() error = %v, want *Error for add", err)
	}

	res, err := tl.Execute(context.Background(), json.RawMessage(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.OutputString() != "3" {
		t.Errorf("OutputString() = %s, want 3", res.OutputString())
	}
}

func TestSchema_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		schema  Schema
		data    string
		wantErr bool
	}{
		{"empty accepts anything", EmptySchema(), `not json`, false},
		{"invalid json", NewSchema(json.RawMessage(`{"type":"object"}`)), `{`, true},
		{"no required", NewSchema(json.RawMessage(`{"type":"object"}`)), `{}`, false},
		{"required present", ObjectSchema(nil, []string{"q"}), `{"q":"x"}`, false},
		{"required missing", ObjectSchema(nil, []string{"q"}), `{"p":"x"}`, true},
		{"not an object", ObjectSchema(nil, []string{"q"}), `[1]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.schema.Validate(json.RawMessage(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
