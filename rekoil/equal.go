package rekoil

import "reflect"

type equaler[T any] interface {
	Equal(T) bool
}

// defaultEqual prefers the value's own Equal method, then ==, then
// reflect.DeepEqual for types that are not comparable. A comparable type
// holding interfaces can still make == panic on dynamic values; those
// comparisons fall back to reflect.DeepEqual.
func defaultEqual[T any]() func(a, b T) bool {
	var zero T
	if _, ok := any(zero).(equaler[T]); ok {
		return func(a, b T) bool {
			return any(a).(equaler[T]).Equal(b)
		}
	}

	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Interface && typ.Comparable() {
		return func(a, b T) bool {
			return safeEqual(a, b)
		}
	}
	return func(a, b T) bool {
		return reflect.DeepEqual(a, b)
	}
}

func safeEqual[T any](a, b T) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = reflect.DeepEqual(a, b)
		}
	}()
	return any(a) == any(b)
}
