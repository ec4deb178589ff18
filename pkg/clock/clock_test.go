/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package clock

import (
	"testing"
	"time"

	"github.com/dnote/papercli/pkg/assert"
)

func TestMockAdvance(t *testing.T) {
	c := NewMock()
	start := c.Now()

	c.Advance(90 * time.Second)

	assert.Equal(t, c.Now(), start.Add(90*time.Second), "time mismatch")
	assert.Equal(t, c.Since(start), 90*time.Second, "elapsed mismatch")
}

func TestMockSetNow(t *testing.T) {
	c := NewMock()
	ts := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

	c.SetNow(ts)

	assert.Equal(t, c.Now(), ts, "time mismatch")
}
