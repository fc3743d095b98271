package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

func primitiveEntity(t *testing.T, id, handlerRef string) *types.Entity {
	t.Helper()
	raw, err := json.Marshal(types.PrimitiveData{
		HandlerRef:  handlerRef,
		Description: "test primitive",
	})
	if err != nil {
		t.Fatalf("marshal primitive data: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal primitive data: %v", err)
	}
	return &types.Entity{ID: id, Type: types.TypePrimitive, Data: data}
}

func TestRegisterAndCall(t *testing.T) {
	reg := New(map[string]Handler{
		"std.echo": func(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args["value"]}, nil
		},
	})

	if _, err := reg.RegisterFromEntity(primitiveEntity(t, "primitive-echo", "std.echo")); err != nil {
		t.Fatalf("RegisterFromEntity failed: %v", err)
	}

	result, err := reg.Call(&storage.ExecutionContext{}, "primitive-echo", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result["echo"] != "hi" {
		t.Errorf("result = %v, want echo:hi", result)
	}
}

func TestCallUnknownPrimitive(t *testing.T) {
	reg := New(nil)
	_, err := reg.Call(&storage.ExecutionContext{}, "primitive-nope", nil)
	if types.KindOf(err, "") != types.ErrPrimitiveNotFound {
		t.Errorf("error = %v, want primitive_not_found", err)
	}
}

func TestRegisterUnresolvedHandlerRef(t *testing.T) {
	reg := New(nil)
	rec, err := reg.RegisterFromEntity(primitiveEntity(t, "primitive-ghost", "std.missing"))
	if err != nil {
		t.Fatalf("RegisterFromEntity failed: %v", err)
	}
	if rec.Handler != nil {
		t.Fatal("expected nil handler for unresolved ref")
	}

	// Still listed as a capability.
	records := reg.List()
	if len(records) != 1 || records[0].Primitive.ID != "primitive-ghost" {
		t.Errorf("List = %+v", records)
	}

	// But not callable.
	_, err = reg.Call(&storage.ExecutionContext{}, "primitive-ghost", nil)
	if types.KindOf(err, "") != types.ErrPrimitiveNotLoaded {
		t.Errorf("error = %v, want primitive_not_loaded", err)
	}
}

func TestCallHandlerError(t *testing.T) {
	reg := New(map[string]Handler{
		"std.fail": func(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		},
		"std.fail-typed": func(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
			return nil, types.NewError(types.ErrMapping, "bad input")
		},
	})
	reg.RegisterFromEntity(primitiveEntity(t, "primitive-fail", "std.fail"))
	reg.RegisterFromEntity(primitiveEntity(t, "primitive-fail-typed", "std.fail-typed"))

	_, err := reg.Call(&storage.ExecutionContext{}, "primitive-fail", nil)
	if types.KindOf(err, "") != types.ErrPrimitiveExecution {
		t.Errorf("plain error = %v, want primitive_execution_error", err)
	}

	// Structured kinds pass through untouched.
	_, err = reg.Call(&storage.ExecutionContext{}, "primitive-fail-typed", nil)
	if types.KindOf(err, "") != types.ErrMapping {
		t.Errorf("typed error = %v, want mapping_error", err)
	}
}

func TestCallHandlerPanic(t *testing.T) {
	reg := New(map[string]Handler{
		"std.panic": func(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
			panic("unexpected")
		},
	})
	reg.RegisterFromEntity(primitiveEntity(t, "primitive-panic", "std.panic"))

	_, err := reg.Call(&storage.ExecutionContext{}, "primitive-panic", nil)
	if types.KindOf(err, "") != types.ErrRuntime {
		t.Errorf("error = %v, want runtime_error", err)
	}
}

func TestCallNilResultNormalized(t *testing.T) {
	reg := New(map[string]Handler{
		"std.noop": func(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
			return nil, nil
		},
	})
	reg.RegisterFromEntity(primitiveEntity(t, "primitive-noop", "std.noop"))

	result, err := reg.Call(&storage.ExecutionContext{}, "primitive-noop", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result == nil {
		t.Error("expected empty map, got nil")
	}
}

func TestInvokeProtocolWithoutInvoker(t *testing.T) {
	reg := New(nil)
	_, err := reg.InvokeProtocol(context.Background(), &storage.ExecutionContext{}, "protocol-x", nil)
	if types.KindOf(err, "") != types.ErrNoInvoker {
		t.Errorf("error = %v, want no_invoker", err)
	}
}

func TestInvokeProtocolDelegates(t *testing.T) {
	reg := New(nil)
	reg.SetProtocolInvoker(func(ctx context.Context, ec *storage.ExecutionContext, protocolID string, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"protocol": protocolID}, nil
	})

	result, err := reg.InvokeProtocol(context.Background(), &storage.ExecutionContext{}, "protocol-x", nil)
	if err != nil {
		t.Fatalf("InvokeProtocol failed: %v", err)
	}
	if result["protocol"] != "protocol-x" {
		t.Errorf("result = %v", result)
	}
}
