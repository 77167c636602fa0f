/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// ReplaceSlicesHookFunc returns a mapstructure hook that resets a slice field before it is decoded.
// Without it mapstructure writes the decoded elements over the existing ones by index,
// so a configured list shorter than the default one would keep the default tail.
func ReplaceSlicesHookFunc() mapstructure.DecodeHookFuncValue {
	return func(from reflect.Value, to reflect.Value) (interface{}, error) {
		if from.Kind() == reflect.Slice && to.Kind() == reflect.Slice && to.CanSet() {
			to.Set(reflect.Zero(to.Type()))
		}
		return from.Interface(), nil
	}
}

// UnmarshalOption prepares viper.Unmarshal (or any mapstructure decoding) for the Config types of this module:
// custom types are decoded via encoding.TextUnmarshaler and lists replace their defaults.
//
//	err := v.Unmarshal(&cfg, config.UnmarshalOption)
func UnmarshalOption(c *mapstructure.DecoderConfig) {
	hooks := []mapstructure.DecodeHookFunc{mapstructure.TextUnmarshallerHookFunc(), ReplaceSlicesHookFunc()}
	if c.DecodeHook != nil {
		hooks = append([]mapstructure.DecodeHookFunc{c.DecodeHook}, hooks...)
	}
	c.DecodeHook = mapstructure.ComposeDecodeHookFunc(hooks...)
}
