// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package estimation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosmith517/scopekit/internal/remote"
)

func TestConfidenceScore(t *testing.T) {
	assert.Zero(t, ConfidenceScore(nil))
	assert.Zero(t, ConfidenceScore(&remote.Estimate{}))

	noEvidence := &remote.Estimate{Lines: []remote.EstimateLine{{Description: "paint"}}}
	assert.Equal(t, 0.5, ConfidenceScore(noEvidence))

	est := &remote.Estimate{Lines: []remote.EstimateLine{
		{Evidence: []remote.Evidence{{Type: "photo", Confidence: 0.9}, {Type: "transcript", Confidence: 0.7}}},
		{Evidence: []remote.Evidence{{Type: "photo"}}},
		{Description: "labor"},
	}}
	assert.InDelta(t, (0.9+0.7+0.5)/3, ConfidenceScore(est), 1e-9)
}

func TestEvidenceCoverage(t *testing.T) {
	assert.Zero(t, EvidenceCoverage(&remote.Estimate{}))
	est := &remote.Estimate{Lines: []remote.EstimateLine{
		{Evidence: []remote.Evidence{{Type: "photo", Confidence: 0.9}}},
		{Description: "labor"},
		{Description: "disposal"},
		{Evidence: []remote.Evidence{{Type: "transcript", Confidence: 0.6}}},
	}}
	assert.Equal(t, 50.0, EvidenceCoverage(est))
}
