package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pageTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t2550\t3300\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tSec.\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t80\t3-1.\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t50\t20\t70\tTax\n" +
	"5\t1\t1\t1\t2\t2\t70\t40\t50\t20\t-1\t \n"

// fakeRunner renders two pages and answers tesseract with pageTSV.
type fakeRunner struct {
	calls []string
	fail  string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	if name == f.fail {
		return nil, errors.New(name + " exploded")
	}
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for _, n := range []string{"-2.png", "-1.png"} {
			if err := os.WriteFile(prefix+n, []byte("png"), 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		return []byte(pageTSV), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestRecognize(t *testing.T) {
	runner := &fakeRunner{}
	o := New(runner, "", t.TempDir(), zap.NewNop())

	text, conf, err := o.Recognize(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "Sec. 3-1.\nTax\n\nSec. 3-1.\nTax", text)
	assert.InDelta(t, 0.8, conf, 1e-9)
	assert.Equal(t, []string{"pdftoppm", "tesseract", "tesseract"}, runner.calls)
}

func TestRecognize_CleansUpAndPropagatesErrors(t *testing.T) {
	tmp := t.TempDir()
	o := New(&fakeRunner{fail: "tesseract"}, "deu", tmp, zap.NewNop())

	_, _, err := o.Recognize(context.Background(), []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "tesseract exploded"))

	left, err := filepath.Glob(filepath.Join(tmp, "ocr-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestParseTSVSkipsNonWords(t *testing.T) {
	p := parseTSV(pageTSV)
	assert.Equal(t, 3, p.words)
	assert.Equal(t, "Sec. 3-1.\nTax", p.text)
}
