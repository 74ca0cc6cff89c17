package plan

import "reflect"

// Keyed lets a step override its result key. Plans that hold two steps of
// the same type must give them distinct keys.
type Keyed interface {
	Key() string
}

// Results maps a step key to the last result recorded for it.
type Results map[string]Result

// KeyOf returns the key a step's result is recorded under.
func KeyOf(step Step) string {
	if k, ok := step.(Keyed); ok && k.Key() != "" {
		return k.Key()
	}
	return typeKey(reflect.TypeOf(step))
}

// KeyFor returns the type-derived key for steps of type T.
func KeyFor[T Step]() string {
	return typeKey(reflect.TypeOf((*T)(nil)).Elem())
}

func typeKey(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func (r Results) Get(key string) (Result, bool) {
	res, ok := r[key]
	return res, ok
}

// StepMessage returns the message recorded for the step of type T.
func StepMessage[T Step](r Results) (string, bool) {
	res, ok := r[KeyFor[T]()]
	if !ok {
		return "", false
	}
	return res.Message, true
}

// StepPayload returns the payload recorded for the step of type T, asserted to P.
func StepPayload[T Step, P any](r Results) (P, bool) {
	var zero P
	res, ok := r[KeyFor[T]()]
	if !ok {
		return zero, false
	}
	p, ok := res.Payload.(P)
	if !ok {
		return zero, false
	}
	return p, true
}
