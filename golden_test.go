package thicket

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden test format.
type goldenFile struct {
	Inferences []goldenInfer  `json:"inferences,omitempty"`
	Lookups    []goldenLookup `json:"lookups,omitempty"`
	MROs       []goldenMRO    `json:"mros,omitempty"`
}

type goldenLoc struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

type goldenInfer struct {
	goldenLoc
	Values []string `json:"values"`
}

type goldenLookup struct {
	goldenLoc
	// Statements are the lines of the binding statements.
	Statements []int `json:"statements"`
}

type goldenMRO struct {
	File  string   `json:"file"`
	Class string   `json:"class"`
	MRO   []string `json:"mro"`
}

// TestGolden walks testdata/{language}/ directories and runs golden tests
// for every level that has a golden.json and a src/ directory.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		levels, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, level := range levels {
			if !level.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, level.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			srcDir := filepath.Join(testDir, "src")

			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}
			if _, err := os.Stat(srcDir); err != nil {
				continue
			}

			t.Run(lang+"/"+level.Name(), func(t *testing.T) {
				runGoldenTest(t, srcDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, srcDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	absSrc, err := filepath.Abs(srcDir)
	require.NoError(t, err)
	dbPath := filepath.Join(t.TempDir(), "golden.db")
	engine, err := New(WithSearchPaths(absSrc), WithDB(dbPath))
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()

	if len(golden.Inferences) > 0 {
		t.Run("inferences", func(t *testing.T) {
			for _, exp := range golden.Inferences {
				res, err := engine.InferAt(ctx, filepath.Join(absSrc, exp.File), exp.Line, exp.Col)
				require.NoError(t, err, "%+v", exp.goldenLoc)
				var got []string
				for _, v := range res.Values {
					got = append(got, v.Repr)
				}
				assert.Equal(t, exp.Values, got, "%+v", exp.goldenLoc)
			}
		})
	}

	if len(golden.Lookups) > 0 {
		t.Run("lookups", func(t *testing.T) {
			for _, exp := range golden.Lookups {
				res, err := engine.LookupAt(ctx, filepath.Join(absSrc, exp.File), exp.Line, exp.Col)
				require.NoError(t, err, "%+v", exp.goldenLoc)
				var got []int
				for _, s := range res.Statements {
					got = append(got, s.Line)
				}
				assert.Equal(t, exp.Statements, got, "%+v", exp.goldenLoc)
			}
		})
	}

	if len(golden.MROs) > 0 {
		t.Run("mros", func(t *testing.T) {
			for _, exp := range golden.MROs {
				mro, err := engine.MRO(ctx, filepath.Join(absSrc, exp.File), exp.Class)
				require.NoError(t, err, exp.Class)
				var got []string
				for _, c := range mro {
					got = append(got, c.Name)
				}
				assert.Equal(t, exp.MRO, got, exp.Class)
			}
		})
	}
}
