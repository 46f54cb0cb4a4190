package churn

import (
	"sort"

	"github.com/bricodata/retail-cli/internal/model"
)

// evaluate scores the fitted ensemble on both splits. Accuracy is
// reported for train and test; precision, recall, F1, AUC, and the
// confusion matrix come from the held-out split only.
func (p *Predictor) evaluate(Xtr [][]float64, ytr []int, Xte [][]float64, yte []int) *model.ChurnMetrics {
	m := &model.ChurnMetrics{
		TrainRows: len(ytr),
		TestRows:  len(yte),
	}

	m.TrainAccuracy = p.accuracy(Xtr, ytr)

	probs := make([]float64, len(Xte))
	for i, x := range Xte {
		probs[i] = p.ens.probability(x)
	}

	var cm model.ConfusionMatrix
	correct := 0
	for i, prob := range probs {
		pred := 0
		if prob > 0.5 {
			pred = 1
		}
		if pred == yte[i] {
			correct++
		}
		switch {
		case pred == 1 && yte[i] == 1:
			cm.TP++
		case pred == 1 && yte[i] == 0:
			cm.FP++
		case pred == 0 && yte[i] == 1:
			cm.FN++
		default:
			cm.TN++
		}
	}
	m.TestAccuracy = float64(correct) / float64(len(yte))
	m.Confusion = cm

	if cm.TP+cm.FP > 0 {
		m.Precision = float64(cm.TP) / float64(cm.TP+cm.FP)
	}
	if cm.TP+cm.FN > 0 {
		m.Recall = float64(cm.TP) / float64(cm.TP+cm.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.AUC = rocAUC(probs, yte)

	return m
}

func (p *Predictor) accuracy(X [][]float64, y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	correct := 0
	for i, x := range X {
		pred := 0
		if p.ens.probability(x) > 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

// rocAUC computes the area under the ROC curve via the rank-sum
// formulation, averaging ranks over tied scores.
func rocAUC(scores []float64, y []int) float64 {
	n := len(scores)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		// 1-based rank averaged across the tie group.
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var posRankSum float64
	pos := 0
	for i, label := range y {
		if label == 1 {
			posRankSum += ranks[i]
			pos++
		}
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0
	}
	return (posRankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}
