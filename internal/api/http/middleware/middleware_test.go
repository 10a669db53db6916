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

package middleware

import "testing"

func TestDetermineAction(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"POST", "/api/sync/drain", "drain"},
		{"POST", "/api/sync/clear", "clear_queue"},
		{"DELETE", "/api/sync/items/abc", "discard_item"},
		{"POST", "/api/visits/v1/estimation", "trigger_estimation"},
		{"POST", "/api/estimation/process", "process_queued_jobs"},
		{"POST", "/api/visits/v1/finalize", "finalize_visit"},
		{"POST", "/api/visits", "create_visit"},
		{"PUT", "/api/other", "unknown"},
	}
	for _, tc := range cases {
		if got := determineAction(tc.method, tc.path); got != tc.want {
			t.Errorf("determineAction(%s %s) = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	typ, id := extractResource("/api/sync/items/item-1")
	if typ != "queue_item" || id != "item-1" {
		t.Fatalf("got %s/%s", typ, id)
	}
	typ, id = extractResource("/api/visits/v9/estimation")
	if typ != "visit" || id != "v9" {
		t.Fatalf("got %s/%s", typ, id)
	}
	typ, _ = extractResource("/api/estimation/process")
	if typ != "estimation" {
		t.Fatalf("got %s", typ)
	}
}
