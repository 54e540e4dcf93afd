package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// modelArtifact is the on-disk shape of a trained multinomial naive Bayes
// model. All probabilities are natural logarithms.
type modelArtifact struct {
	Classes     []string                      `json:"classes"`
	Priors      map[string]float64            `json:"priors"`
	Likelihoods map[string]map[string]float64 `json:"likelihoods"`
	Unseen      map[string]float64            `json:"unseen"`
}

// NaiveBayes scores tokenized text against a trained artifact. It is
// immutable after load and safe for concurrent use.
type NaiveBayes struct {
	classes     []string
	priors      map[string]float64
	likelihoods map[string]map[string]float64
	unseen      map[string]float64
}

// LoadModel reads a naive Bayes artifact from path. A missing file is not an
// error: it returns (nil, nil) so ingestion runs without the model tier.
func LoadModel(path string) (*NaiveBayes, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	return newNaiveBayes(artifact)
}

func newNaiveBayes(artifact modelArtifact) (*NaiveBayes, error) {
	if len(artifact.Classes) == 0 {
		return nil, fmt.Errorf("model artifact has no classes")
	}
	for _, class := range artifact.Classes {
		if _, ok := artifact.Priors[class]; !ok {
			return nil, fmt.Errorf("model artifact missing prior for class %q", class)
		}
	}
	return &NaiveBayes{
		classes:     artifact.Classes,
		priors:      artifact.Priors,
		likelihoods: artifact.Likelihoods,
		unseen:      artifact.Unseen,
	}, nil
}

// PredictWithConfidence scores the space-separated token text and returns
// the argmax class with its posterior probability.
func (m *NaiveBayes) PredictWithConfidence(text string) (string, float64, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return "", 0, fmt.Errorf("no content tokens in input")
	}

	scores := make([]float64, len(m.classes))
	for i, class := range m.classes {
		score := m.priors[class]
		likelihoods := m.likelihoods[class]
		for _, tok := range tokens {
			if lp, ok := likelihoods[tok]; ok {
				score += lp
			} else {
				score += m.unseen[class]
			}
		}
		scores[i] = score
	}

	// Log-sum-exp normalization turns the joint log scores into a posterior.
	maxScore := scores[0]
	best := 0
	for i, s := range scores {
		if s > maxScore {
			maxScore = s
			best = i
		}
	}
	var total float64
	for _, s := range scores {
		total += math.Exp(s - maxScore)
	}
	confidence := 1 / total

	return m.classes[best], confidence, nil
}
