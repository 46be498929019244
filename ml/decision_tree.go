package ml

import (
	"errors"
	"fmt"
)

const KindDecisionTree = "decision_tree"

// DecisionTree is a fitted classification tree stored as a flat node list.
type DecisionTree struct {
	nodes  []TreeNode
	width  int
	scored bool
}

// TreeNode is one split or leaf. Children always have a higher index than
// their parent.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	// Value is the leaf output used by boosted ensembles.
	Value float64 `json:"value,omitempty"`
	// Confidence is the fraction of training samples at the leaf that
	// carried ClassLabel. Zero means the artifact did not record it.
	Confidence float64 `json:"confidence,omitempty"`
}

// NewDecisionTree validates nodes against width and builds the tree.
func NewDecisionTree(nodes []TreeNode, width int) (*DecisionTree, error) {
	if err := validateNodes(nodes, width); err != nil {
		return nil, err
	}
	dt := &DecisionTree{
		nodes: append([]TreeNode(nil), nodes...),
		width: width,
	}
	for _, node := range nodes {
		if node.IsLeaf && node.Confidence > 0 {
			dt.scored = true
			break
		}
	}
	return dt, nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	node, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	return node.ClassLabel, node.Confidence, nil
}

func (dt *DecisionTree) InputWidth() int { return dt.width }

func (dt *DecisionTree) HasScore() bool { return dt.scored }

func (dt *DecisionTree) Kind() string { return KindDecisionTree }

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, errors.New("model not loaded")
	}
	if len(features) != dt.width {
		return TreeNode{}, fmt.Errorf("%w: model expects %d features, got %d", ErrDimensionMismatch, dt.width, len(features))
	}
	idx := 0
	// a well-formed tree reaches a leaf in fewer steps than it has nodes
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return TreeNode{}, errors.New("invalid tree state")
}

func validateNodes(nodes []TreeNode, width int) error {
	if width <= 0 {
		return fmt.Errorf("%w: n_features_in must be positive", ErrCorruptArtifact)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrCorruptArtifact)
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if !(node.Confidence >= 0 && node.Confidence <= 1) {
				return fmt.Errorf("%w: leaf %d confidence %v outside [0,1]", ErrCorruptArtifact, i, node.Confidence)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= width {
			return fmt.Errorf("%w: node %d splits on feature %d outside width %d", ErrDimensionMismatch, i, node.FeatureIdx, width)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("%w: node %d has invalid children", ErrCorruptArtifact, i)
		}
	}
	return nil
}
