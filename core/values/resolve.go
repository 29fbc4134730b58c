/*
SPDX-License-Identifier: Apache-2.0

Copyright 2024 The Taxinomia Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package values

import (
	"reflect"
	"slices"
	"strings"
)

// Getter is implemented by records that expose named values directly.
type Getter interface {
	Get(name string) (any, bool)
}

// Path is a parsed dotted binding such as "customer.address.city".
type Path []string

// ParsePath splits a dotted binding. An empty binding yields a nil Path.
func ParsePath(binding string) Path {
	if binding == "" {
		return nil
	}
	return strings.Split(binding, ".")
}

// String joins the path back into its binding form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Get reads the value at the path, returning nil when any step is missing.
func (p Path) Get(item any) any {
	if len(p) == 0 {
		return nil
	}
	v := item
	for _, name := range p {
		var ok bool
		if v, ok = member(v, name); !ok {
			return nil
		}
	}
	return v
}

// Resolve reads a dotted binding from item.
func Resolve(item any, binding string) any {
	return ParsePath(binding).Get(item)
}

// Names lists the top-level member names of a record in a stable order:
// map keys sorted, struct fields in declaration order.
func Names(item any) []string {
	switch r := item.(type) {
	case nil:
		return nil
	case interface{ Names() []string }:
		return r.Names()
	}
	rv := reflect.Indirect(reflect.ValueOf(item))
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		names := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			names = append(names, k.String())
		}
		slices.Sort(names)
		return names
	case reflect.Struct:
		t := rv.Type()
		names := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() {
				names = append(names, f.Name)
			}
		}
		return names
	}
	return nil
}

func member(item any, name string) (any, bool) {
	switch r := item.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := r[name]
		return v, ok
	case map[string]string:
		v, ok := r[name]
		return v, ok
	case Getter:
		return r.Get(name)
	}

	rv := reflect.ValueOf(item)
	if m := rv.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), true
	}
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}
