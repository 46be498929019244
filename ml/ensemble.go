package ml

import (
	"fmt"
	"math"
	"sort"
)

const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// RandomForest averages the per-tree class probabilities when every leaf
// records a confidence, and falls back to a majority vote otherwise. Ties go
// to the lowest class index. The score is the winning probability or vote
// share.
type RandomForest struct {
	trees   []*DecisionTree
	width   int
	classes []int
	soft    bool
}

// NewRandomForest builds a forest from per-tree node lists.
func NewRandomForest(trees [][]TreeNode, width int) (*RandomForest, error) {
	built, err := buildTrees(trees, width)
	if err != nil {
		return nil, err
	}
	rf := &RandomForest{trees: built, width: width, soft: true}
	seen := make(map[int]bool)
	for _, tree := range built {
		for _, node := range tree.nodes {
			if !node.IsLeaf {
				continue
			}
			if node.Confidence <= 0 {
				rf.soft = false
			}
			if !seen[node.ClassLabel] {
				seen[node.ClassLabel] = true
				rf.classes = append(rf.classes, node.ClassLabel)
			}
		}
	}
	sort.Ints(rf.classes)
	return rf, nil
}

func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	totals := make(map[int]float64, len(rf.classes))
	for _, tree := range rf.trees {
		node, err := tree.leaf(features)
		if err != nil {
			return 0, 0, err
		}
		if !rf.soft {
			totals[node.ClassLabel]++
			continue
		}
		totals[node.ClassLabel] += node.Confidence
		// a leaf's remaining mass is shared by the other classes
		if others := len(rf.classes) - 1; others > 0 {
			rest := (1 - node.Confidence) / float64(others)
			for _, class := range rf.classes {
				if class != node.ClassLabel {
					totals[class] += rest
				}
			}
		}
	}

	bestLabel, best := rf.classes[0], -1.0
	for _, class := range rf.classes {
		if totals[class] > best {
			bestLabel, best = class, totals[class]
		}
	}
	return bestLabel, best / float64(len(rf.trees)), nil
}

func (rf *RandomForest) InputWidth() int { return rf.width }

func (rf *RandomForest) HasScore() bool { return true }

func (rf *RandomForest) Kind() string { return KindRandomForest }

// GradientBoosting is a binary log-loss ensemble of regression trees. The
// decision function is init + learningRate * sum(leaf values).
type GradientBoosting struct {
	trees        []*DecisionTree
	width        int
	init         float64
	learningRate float64
}

// NewGradientBoosting builds a boosted ensemble. learningRate must be
// positive and init finite.
func NewGradientBoosting(trees [][]TreeNode, width int, init, learningRate float64) (*GradientBoosting, error) {
	if learningRate <= 0 || math.IsNaN(learningRate) || math.IsInf(learningRate, 0) {
		return nil, fmt.Errorf("%w: learning_rate must be positive", ErrCorruptArtifact)
	}
	if math.IsNaN(init) || math.IsInf(init, 0) {
		return nil, fmt.Errorf("%w: init is not finite", ErrCorruptArtifact)
	}
	built, err := buildTrees(trees, width)
	if err != nil {
		return nil, err
	}
	return &GradientBoosting{trees: built, width: width, init: init, learningRate: learningRate}, nil
}

func (gb *GradientBoosting) Predict(features []float64) (int, float64, error) {
	raw := gb.init
	for _, tree := range gb.trees {
		node, err := tree.leaf(features)
		if err != nil {
			return 0, 0, err
		}
		raw += gb.learningRate * node.Value
	}
	p := 1 / (1 + math.Exp(-raw))
	if p > 0.5 {
		return 1, p, nil
	}
	return 0, 1 - p, nil
}

func (gb *GradientBoosting) InputWidth() int { return gb.width }

func (gb *GradientBoosting) HasScore() bool { return true }

func (gb *GradientBoosting) Kind() string { return KindGradientBoosting }

func buildTrees(trees [][]TreeNode, width int) ([]*DecisionTree, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: ensemble has no trees", ErrCorruptArtifact)
	}
	built := make([]*DecisionTree, len(trees))
	for i, nodes := range trees {
		tree, err := NewDecisionTree(nodes, width)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		built[i] = tree
	}
	return built, nil
}
