// Copyright 2025 Tom Barlow
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

package down

import (
	"testing"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "down" {
		t.Errorf("expected use 'down', got %q", cmd.Use)
	}

	if cmd.Flags().Lookup("volumes") == nil {
		t.Error("volumes flag not registered")
	}

	removeVolumes, err := cmd.Flags().GetBool("volumes")
	if err != nil {
		t.Fatalf("volumes flag: %v", err)
	}
	if removeVolumes {
		t.Error("volumes must default to false")
	}
}
