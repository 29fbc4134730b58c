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

package csvimport

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/types/known/structpb"
)

// OptionsFromJSON creates ImportOptions from a JSON object. Keys that are
// absent keep their DefaultOptions value.
func OptionsFromJSON(data []byte) (ImportOptions, error) {
	options := DefaultOptions()
	if err := json.Unmarshal(data, &options); err != nil {
		return ImportOptions{}, fmt.Errorf("failed to parse import options: %w", err)
	}
	return options, nil
}

// OptionsFromTextproto creates ImportOptions from a google.protobuf.Struct
// in text format, e.g.
//
//	fields { key: "delimiter" value { string_value: ";" } }
//	fields { key: "columns" value { struct_value {
//	  fields { key: "id" value { struct_value {
//	    fields { key: "type" value { string_value: "string" } }
//	  } } }
//	} } }
func OptionsFromTextproto(textproto string) (ImportOptions, error) {
	var s structpb.Struct
	if err := prototext.Unmarshal([]byte(textproto), &s); err != nil {
		return ImportOptions{}, fmt.Errorf("failed to parse textproto: %w", err)
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return ImportOptions{}, err
	}
	return OptionsFromJSON(data)
}
