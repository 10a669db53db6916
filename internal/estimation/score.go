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

import "github.com/bosmith517/scopekit/internal/remote"

// ConfidenceScore 证据置信度均值；缺省置信度按 0.5 计，无证据时为 0.5，无明细行时为 0
func ConfidenceScore(est *remote.Estimate) float64 {
	if est == nil || len(est.Lines) == 0 {
		return 0
	}
	var total float64
	n := 0
	for _, line := range est.Lines {
		for _, ev := range line.Evidence {
			c := ev.Confidence
			if c == 0 {
				c = 0.5
			}
			total += c
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return total / float64(n)
}

// EvidenceCoverage 有证据的明细行占比（百分比）
func EvidenceCoverage(est *remote.Estimate) float64 {
	if est == nil || len(est.Lines) == 0 {
		return 0
	}
	covered := 0
	for _, line := range est.Lines {
		if len(line.Evidence) > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(est.Lines)) * 100
}
