package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultRules())

	tests := []struct {
		name string
		ev   Event
		want Decision
	}{
		{
			name: "test file change reruns without reload",
			ev:   Event{Path: "/repo/pkg/store_test.go", Kind: KindModified},
			want: Decision{Rerun: true, Module: "store_test"},
		},
		{
			name: "source change reruns and reloads",
			ev:   Event{Path: "/repo/pkg/store.go", Kind: KindModified},
			want: Decision{Rerun: true, Reload: true, Module: "store"},
		},
		{
			name: "markup change only reloads",
			ev:   Event{Path: "/repo/views/index.tmpl", Kind: KindModified},
			want: Decision{Reload: true},
		},
		{
			name: "created files are ignored",
			ev:   Event{Path: "/repo/pkg/store.go", Kind: KindCreated},
		},
		{
			name: "deleted files are ignored",
			ev:   Event{Path: "/repo/pkg/store.go", Kind: KindDeleted},
		},
		{
			name: "unknown extension is ignored",
			ev:   Event{Path: "/repo/README.md", Kind: KindModified},
		},
		{
			name: "editor swap file is ignored",
			ev:   Event{Path: "/repo/pkg/.store.go.swp", Kind: KindModified},
		},
		{
			name: "vendored code is ignored",
			ev:   Event{Path: "/repo/vendor/dep/dep.go", Kind: KindModified},
		},
		{
			name: "empty path is ignored",
			ev:   Event{Path: "  ", Kind: KindModified},
		},
		{
			name: "extension only is ignored",
			ev:   Event{Path: "/repo/pkg/.go", Kind: KindModified},
		},
		{
			name: "extension match is case insensitive",
			ev:   Event{Path: "/repo/pkg/Store.GO", Kind: KindModified},
			want: Decision{Rerun: true, Reload: true, Module: "Store"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.ev)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Rerun || tt.want.Reload, got.Relevant())
		})
	}
}

func TestClassify_PrefixConvention(t *testing.T) {
	c := NewClassifier(Rules{
		SourceExtensions: []string{".py"},
		MarkupExtensions: []string{".xml"},
		TestPrefix:       "test_",
	})

	assert.Equal(t, Decision{Rerun: true, Module: "test_sale"},
		c.Classify(Event{Path: "addons/sale/tests/test_sale.py", Kind: KindModified}))
	assert.Equal(t, Decision{Rerun: true, Reload: true, Module: "models"},
		c.Classify(Event{Path: "addons/sale/models.py", Kind: KindModified}))
	assert.Equal(t, Decision{Reload: true},
		c.Classify(Event{Path: "addons/sale/views/sale.xml", Kind: KindModified}))
}

func TestClassify_ExclusionsRelativeToRoot(t *testing.T) {
	rules := DefaultRules()
	rules.Root = "/home/dev/build/repo"
	c := NewClassifier(rules)

	assert.Equal(t, Decision{Rerun: true, Reload: true, Module: "main"},
		c.Classify(Event{Path: "/home/dev/build/repo/main.go", Kind: KindModified}))
	assert.Equal(t, Decision{},
		c.Classify(Event{Path: "/home/dev/build/repo/build/gen.go", Kind: KindModified}))
}

func TestIsTestFile(t *testing.T) {
	c := NewClassifier(Rules{TestPrefix: "test_", TestSuffix: "_test"})
	assert.True(t, c.IsTestFile("test_models"))
	assert.True(t, c.IsTestFile("models_test"))
	assert.False(t, c.IsTestFile("models"))

	none := NewClassifier(Rules{})
	assert.False(t, none.IsTestFile("models_test"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "modified", KindModified.String())
	assert.Equal(t, "created", KindCreated.String())
	assert.Equal(t, "deleted", KindDeleted.String())
	assert.Equal(t, "other", KindOther.String())
}
