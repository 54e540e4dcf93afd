package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testArtifact = `{
  "classes": ["线性代数", "高等数学"],
  "priors": {"线性代数": -0.69, "高等数学": -0.69},
  "likelihoods": {
    "线性代数": {"矩阵": -1.0, "行列式": -1.2},
    "高等数学": {"极限": -1.0, "导数": -1.1}
  },
  "unseen": {"线性代数": -9.0, "高等数学": -9.0}
}`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subject_classifier.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadModelMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	model, err := LoadModel(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestLoadModelEmptyPath(t *testing.T) {
	t.Parallel()

	model, err := LoadModel("")
	require.NoError(t, err)
	assert.Nil(t, model)
}

func TestLoadModelRejectsMalformedArtifacts(t *testing.T) {
	t.Parallel()

	_, err := LoadModel(writeArtifact(t, "{not json"))
	assert.Error(t, err)

	_, err = LoadModel(writeArtifact(t, `{"classes": []}`))
	assert.Error(t, err)

	_, err = LoadModel(writeArtifact(t, `{"classes": ["a"], "priors": {}}`))
	assert.Error(t, err)
}

func TestNaiveBayesPredict(t *testing.T) {
	t.Parallel()

	model, err := LoadModel(writeArtifact(t, testArtifact))
	require.NoError(t, err)
	require.NotNil(t, model)

	label, confidence, err := model.PredictWithConfidence("矩阵 行列式")
	require.NoError(t, err)
	assert.Equal(t, "线性代数", label)
	assert.Greater(t, confidence, 0.99)

	label, confidence, err = model.PredictWithConfidence("极限 导数 导数")
	require.NoError(t, err)
	assert.Equal(t, "高等数学", label)
	assert.Greater(t, confidence, 0.99)

	_, _, err = model.PredictWithConfidence("")
	assert.Error(t, err)
}

func TestClassifierUsesLoadedModel(t *testing.T) {
	t.Parallel()

	model, err := LoadModel(writeArtifact(t, testArtifact))
	require.NoError(t, err)

	c := New(Config{Scorer: model})
	label, tier := c.Classify("行列式的几何意义", "矩阵", "概率论")
	assert.Equal(t, "线性代数", label)
	assert.Equal(t, TierModel, tier)
}
