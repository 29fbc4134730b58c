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
// Package rendering turns pivot view models into HTML pages and terminal
// tables.
package rendering

import (
	"embed"
	"fmt"
	"io"

	"github.com/google/pivotengine/core/views"
	"github.com/google/safehtml/template"
)

//go:embed templates/*
var templateFS embed.FS

var funcs = template.FuncMap{
	"rowClass": rowClass,
}

// rowClass is the CSS class of a body row: empty for detail rows, "total
// grand" for the grand total and "total subtotal" otherwise.
func rowClass(r views.RowModel) string {
	switch {
	case !r.IsTotal:
		return ""
	case r.Level == 0:
		return "total grand"
	}
	return "total subtotal"
}

// TableRenderer renders pivot pages from the embedded templates.
type TableRenderer struct {
	pages map[string]*template.Template
}

// NewTableRenderer parses the embedded templates.
func NewTableRenderer() (*TableRenderer, error) {
	fs := template.TrustedFSFromEmbed(templateFS)
	r := &TableRenderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{"table.html", "landing.html"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(fs, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes the pivot page for vm.
func (r *TableRenderer) Render(w io.Writer, vm views.TableViewModel) error {
	return r.pages["table.html"].Execute(w, vm)
}

// RenderLanding writes the source list page.
func (r *TableRenderer) RenderLanding(w io.Writer, vm views.LandingViewModel) error {
	return r.pages["landing.html"].Execute(w, vm)
}
