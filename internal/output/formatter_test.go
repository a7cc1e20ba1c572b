package output_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/riakpb/internal/output"
)

type row struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

var _ = Describe("Formatter", func() {
	It("renders slices of structs as a table", func() {
		out := output.NewFormatter("table").Format([]row{{"a", 1}, {"bb", 22}})
		Expect(out).To(Equal("NAME  COUNT\na     1\nbb    22\n"))
	})

	It("renders a struct as fields", func() {
		out := output.NewFormatter("").Format(row{"a", 1})
		Expect(out).To(Equal("name:   a\ncount:  1\n"))
	})

	It("renders maps sorted by key", func() {
		out := output.NewFormatter("table").Format(map[string]string{"b": "2", "a": "1"})
		Expect(out).To(Equal("a:  1\nb:  2\n"))
	})

	It("says when there is nothing", func() {
		Expect(output.NewFormatter("table").Format([]string{})).To(Equal("Nothing found.\n"))
	})

	It("renders JSON", func() {
		Expect(output.NewFormatter("json").Format(row{"a", 1})).To(MatchJSON(`{"name":"a","count":1}`))
	})

	It("renders YAML", func() {
		Expect(output.NewFormatter("YAML").Format(row{"a", 1})).To(MatchYAML("name: a\ncount: 1\n"))
	})
})
