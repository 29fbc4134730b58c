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

package protoloader

import (
	"slices"
	"testing"
	"time"

	"github.com/google/pivotengine/core/values"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string, repeated bool) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	fd := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(name),
		Number:   proto.Int32(number),
		Label:    label.Enum(),
		Type:     typ.Enum(),
	}
	if typeName != "" {
		fd.TypeName = proto.String(typeName)
	}
	return fd
}

// salesRegistry builds sales.Report > Region > Store without generated code.
func salesRegistry(t *testing.T) *protoregistry.Files {
	t.Helper()
	const (
		str = descriptorpb.FieldDescriptorProto_TYPE_STRING
		dbl = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		i32 = descriptorpb.FieldDescriptorProto_TYPE_INT32
		enm = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		msg = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
		bln = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	)
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String("sales.proto"),
		Package:    proto.String("sales"),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/timestamp.proto"},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("Channel"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("CHANNEL_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("RETAIL"), Number: proto.Int32(1)},
				{Name: proto.String("ONLINE"), Number: proto.Int32(2)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Report"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("period", 1, str, "", false),
					field("regions", 2, msg, ".sales.Region", true),
					field("tags", 3, str, "", true),
				},
			},
			{
				Name: proto.String("Region"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("region", 1, str, "", false),
					field("stores", 2, msg, ".sales.Store", true),
				},
			},
			{
				Name: proto.String("Store"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("city", 1, str, "", false),
					field("amount", 2, dbl, "", false),
					field("channel", 3, enm, ".sales.Channel", false),
					field("units", 4, i32, "", false),
					field("opened", 5, msg, ".google.protobuf.Timestamp", false),
					field("active", 6, bln, "", false),
				},
			},
		},
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	registry := new(protoregistry.Files)
	if err := registry.RegisterFile(fd); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	return registry
}

const salesText = `
period: "2024-Q1"
tags: "ignored"
regions {
  region: "North"
  stores { city: "Oslo" amount: 10.5 channel: RETAIL units: 3 opened { seconds: 1700000000 } active: true }
  stores { city: "Bergen" amount: 4 channel: ONLINE }
}
regions { region: "South" }
`

func TestFormats(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"data/sales.textproto", Text},
		{"sales.txtpb", Text},
		{"sales.pbtxt", Text},
		{"sales.binpb", Binary},
		{"sales", Binary},
	}
	for _, tt := range tests {
		if got := FormatOf(tt.path); got != tt.want {
			t.Errorf("FormatOf(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if f, err := ParseFormat("textproto"); err != nil || f != Text {
		t.Errorf("ParseFormat(textproto) = %v, %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat(yaml) succeeded")
	}
}

func TestMessages(t *testing.T) {
	if got := NewLoader(nil).Messages(); len(got) != 0 {
		t.Errorf("empty loader lists %v", got)
	}
	got := NewLoader(salesRegistry(t)).Messages()
	want := []string{"sales.Region", "sales.Report", "sales.Store"}
	if !slices.Equal(got, want) {
		t.Errorf("Messages() = %v, want %v", got, want)
	}
}

func TestAddDescriptorSet(t *testing.T) {
	sales, err := salesRegistry(t).FindFileByPath("sales.proto")
	if err != nil {
		t.Fatal(err)
	}
	set := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{
		protodesc.ToFileDescriptorProto(timestamppb.File_google_protobuf_timestamp_proto),
		protodesc.ToFileDescriptorProto(sales),
	}}
	data, err := proto.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	if err := l.AddDescriptorSet(data); err != nil {
		t.Fatalf("AddDescriptorSet: %v", err)
	}
	// Registering the same files again is a no-op.
	if err := l.AddDescriptorSet(data); err != nil {
		t.Fatalf("second AddDescriptorSet: %v", err)
	}
	if !slices.Contains(l.Messages(), "sales.Report") {
		t.Errorf("Messages() = %v", l.Messages())
	}
	if _, err := l.Decode([]byte(salesText), "sales.Report", Text); err != nil {
		t.Errorf("Decode after AddDescriptorSet: %v", err)
	}
	if err := l.AddDescriptorSet([]byte("not a descriptor set")); err == nil {
		t.Error("garbage descriptor set accepted")
	}
}

func TestChain(t *testing.T) {
	md, err := salesRegistry(t).FindDescriptorByName("sales.Report")
	if err != nil {
		t.Fatal(err)
	}
	levels := chain(md.(protoreflect.MessageDescriptor))
	if len(levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(levels))
	}
	if levels[0].child.Name() != "regions" || levels[1].child.Name() != "stores" || levels[2].child != nil {
		t.Error("chain does not follow regions > stores")
	}
	if n := len(levels[0].columns); n != 1 {
		t.Errorf("report level has %d columns, want 1 (repeated scalars skipped)", n)
	}
	if n := len(levels[2].columns); n != 6 {
		t.Errorf("store level has %d columns, want 6", n)
	}
}

func TestFlatten(t *testing.T) {
	l := NewLoader(salesRegistry(t))
	msg, err := l.Decode([]byte(salesText), "sales.Report", Text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tbl := Flatten(msg)

	want := []Column{
		{"period", values.String},
		{"region", values.String},
		{"city", values.String},
		{"amount", values.Number},
		{"channel", values.String},
		{"units", values.Number},
		{"opened", values.Date},
		{"active", values.Boolean},
	}
	if !slices.Equal(tbl.Columns, want) {
		t.Fatalf("columns = %v, want %v", tbl.Columns, want)
	}

	rows := tbl.Records
	if len(rows) != 3 {
		t.Fatalf("got %d records, want 3", len(rows))
	}
	oslo := rows[0]
	if oslo["period"] != "2024-Q1" || oslo["region"] != "North" || oslo["city"] != "Oslo" {
		t.Errorf("record 0 = %v", oslo)
	}
	if oslo["amount"] != 10.5 || oslo["units"] != int64(3) || oslo["channel"] != "RETAIL" || oslo["active"] != true {
		t.Errorf("record 0 typed values = %#v", oslo)
	}
	if ts, ok := oslo["opened"].(time.Time); !ok || ts.Unix() != 1700000000 {
		t.Errorf("opened = %#v", oslo["opened"])
	}
	if rows[1]["opened"] != nil {
		t.Errorf("unset timestamp = %#v, want nil", rows[1]["opened"])
	}
	if rows[1]["units"] != int64(0) || rows[1]["channel"] != "ONLINE" {
		t.Errorf("record 1 = %#v", rows[1])
	}
	south := rows[2]
	if south["region"] != "South" || south["city"] != nil || south["amount"] != nil {
		t.Errorf("childless region record = %#v", south)
	}
}

func TestDecodeBinary(t *testing.T) {
	l := NewLoader(salesRegistry(t))
	msg, err := l.Decode([]byte(salesText), "sales.Report", Text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := proto.Marshal(msg.Interface())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	bin, err := l.Decode(data, "sales.Report", Binary)
	if err != nil {
		t.Fatalf("Decode binary: %v", err)
	}
	if got := len(Flatten(bin).Records); got != 3 {
		t.Errorf("got %d records, want 3", got)
	}

	if _, err := l.Decode(data, "sales.Missing", Binary); err == nil {
		t.Error("unknown message decoded")
	}
	if _, err := l.Decode([]byte("region: {"), "sales.Region", Text); err == nil {
		t.Error("malformed text decoded")
	}
}
