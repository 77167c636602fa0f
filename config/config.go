/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads relay settings from YAML/JSON files and environment variables.
// Every component exposes its own Config type with defaults and validation,
// and Loader fills all of them from a single DataProvider.
package config

import "reflect"

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for all non-nil exported fields
// of the passed struct pointer that implement Config.
// Field configs with a key prefix receive a prefixed data provider.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		c.SetProviderDefaults(cDp)
		return nil
	})
}

// CallSetForFields calls Set for all non-nil exported fields of the passed struct pointer that implement Config.
// It stops on the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		return c.Set(cDp)
	})
}

func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, cDp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		fv := el.Field(i)
		if fv.Kind() == reflect.Ptr && fv.IsNil() {
			continue
		}
		c, ok := fv.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c, providerFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}

func providerFor(c Config, dp DataProvider) DataProvider {
	if kp, ok := c.(KeyPrefixProvider); ok {
		return Prefixed(dp, kp.KeyPrefix())
	}
	return dp
}
