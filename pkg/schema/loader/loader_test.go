package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productDoc = `
modules:
  - name: catalog
    children:
      - name: product
        properties:
          - id: title
            type: string
            nullable: true
`

const inventoryDoc = `
modules:
  - name: inventory
    children:
      - name: stock
        properties:
          - id: quantity
            type: integer
            nullable: true
`

func TestParseYAML(t *testing.T) {
	root, err := Parse("schema.yaml", []byte(productDoc))
	require.NoError(t, err)
	require.Len(t, root.Modules, 1)
	assert.Equal(t, "catalog", root.Modules[0].Name)
	require.Len(t, root.Modules[0].Children, 1)
	assert.Equal(t, "product", root.Modules[0].Children[0].Name)
}

func TestParseJSON(t *testing.T) {
	doc := `{"modules":[{"name":"catalog","children":[{"name":"product","properties":[{"id":"title","type":"string","nullable":true}]}]}]}`
	root, err := Parse("schema.json", []byte(doc))
	require.NoError(t, err)
	require.Len(t, root.Modules, 1)
	assert.Equal(t, "catalog", root.Modules[0].Name)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	_, err := Parse("schema.yaml", []byte("modules: ["))
	assert.Error(t, err)
	_, err = Parse("schema.json", []byte("{"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(productDoc), 0o644))

	root, err := Load(path)
	require.NoError(t, err)
	require.Len(t, root.Modules, 1)
}

func TestLoadDirectoryMergesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-inventory.yaml"), []byte(inventoryDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-catalog.yaml"), []byte(productDoc), 0o644))
	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# docs"), 0o644))

	root, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, root.Modules, 2)
	assert.Equal(t, "catalog", root.Modules[0].Name)
	assert.Equal(t, "inventory", root.Modules[1].Name)
}

func TestLoadDirectoryRejectsDuplicateModules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(productDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(productDoc), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate module "catalog"`)
}

func TestLoadEmptyDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema documents")
}

func TestLoadReportsValidationProblems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	bad := `
modules:
  - name: catalog
    children:
      - name: product
        properties:
          - id: title
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := Load(path)
	var invalid *InvalidDocumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, path, invalid.Path)
	assert.NotEmpty(t, invalid.Problems)
}
