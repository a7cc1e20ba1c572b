// Package output renders command results as a table, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type Formatter interface {
	Format(data interface{}) string
}

// NewFormatter returns the Formatter for format: "table" (default), "json"
// or "yaml".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}
	case "yaml":
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// TableFormatter aligns structs, slices and maps into columns. Column names
// come from json tags when present.
type TableFormatter struct{}

func (f *TableFormatter) Format(data interface{}) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			return "Nothing found.\n"
		}

		elem := indirect(v.Index(0))
		if elem.Kind() != reflect.Struct {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, cell(v.Index(i)))
			}
			break
		}

		t := elem.Type()
		headers := make([]string, t.NumField())
		for i := range headers {
			headers[i] = strings.ToUpper(fieldName(t.Field(i)))
		}
		fmt.Fprintln(w, strings.Join(headers, "\t"))

		for i := 0; i < v.Len(); i++ {
			row := indirect(v.Index(i))
			vals := make([]string, row.NumField())
			for j := range vals {
				vals[j] = cell(row.Field(j))
			}
			fmt.Fprintln(w, strings.Join(vals, "\t"))
		}

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			fmt.Fprintf(w, "%s:\t%s\n", fieldName(t.Field(i)), cell(v.Field(i)))
		}

	case reflect.Map:
		keys := make([]string, 0, v.Len())
		values := make(map[string]string, v.Len())
		for _, k := range v.MapKeys() {
			name := fmt.Sprint(k.Interface())
			keys = append(keys, name)
			values[name] = cell(v.MapIndex(k))
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(w, "%s:\t%s\n", k, values[k])
		}

	default:
		fmt.Fprintln(w, data)
	}

	w.Flush()
	return buf.String()
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

func fieldName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return f.Name
}

// cell renders one value; byte slices print as text.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	if b, ok := v.Interface().([]byte); ok {
		return string(b)
	}

	return fmt.Sprintf("%v", v.Interface())
}

type JSONFormatter struct{}

func (f *JSONFormatter) Format(data interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data interface{}) string {
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
