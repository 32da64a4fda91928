package i18n

import "errors"

// active is the localizer behind the package level functions.
var active *Localizer

// Init makes the localizer for cfg the one used by T, Tf, Tc, Te and the
// symbol helpers.
func Init(cfg Config) error {
	l, err := NewLocalizer(cfg)
	if err != nil {
		return err
	}
	active = l
	return nil
}

// T translates key. Before Init the key itself is returned.
func T(key string) string {
	if active == nil {
		return key
	}
	return active.T(key)
}

// Tf translates key with template data.
func Tf(key string, data map[string]interface{}) string {
	if active == nil {
		return key
	}
	return active.Tf(key, data)
}

// Tc translates the plural form of key for count.
func Tc(key string, count int) string {
	if active == nil {
		return key
	}
	return active.Tc(key, count)
}

// Te returns the translation of key as an error wrapping err. It never
// returns nil.
func Te(key string, err error) error {
	if active != nil {
		return active.Te(key, err)
	}
	if err != nil {
		return err
	}
	return errors.New(key)
}
