/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package cli

import (
	"testing"

	"gotest.tools/assert"

	"mynewt.apache.org/gattsim/gattx/scenario"
)

func TestStepFromArgs(t *testing.T) {
	step, err := stepFromArgs(scenario.STEP_WRITE,
		[]string{"chr=0x2a19", "inst=3", "value=0102", "no_response=true"})
	assert.NilError(t, err)
	assert.Equal(t, step.Op, scenario.STEP_WRITE)
	assert.Equal(t, step.Chr, "0x2a19")
	assert.Equal(t, *step.Inst, 3)
	assert.Equal(t, step.Value, "0102")
	assert.Equal(t, step.NoResponse, true)

	step, err = stepFromArgs(scenario.STEP_REQUEST_MTU, []string{"mtu=185"})
	assert.NilError(t, err)
	assert.Equal(t, step.Mtu, 185)
}

func TestStepFromArgsRejects(t *testing.T) {
	_, err := stepFromArgs(scenario.STEP_READ, []string{"chr"})
	assert.ErrorContains(t, err, "expected key=value")

	_, err = stepFromArgs(scenario.STEP_READ, []string{"color=red"})
	assert.ErrorContains(t, err, "unknown key")

	_, err = stepFromArgs(scenario.STEP_REQUEST_MTU, []string{"mtu=big"})
	assert.ErrorContains(t, err, "invalid mtu")

	_, err = stepFromArgs(scenario.STEP_WRITE, []string{"value=zz"})
	assert.ErrorContains(t, err, "invalid hex")

	_, err = stepFromArgs("jump", nil)
	assert.ErrorContains(t, err, "unknown op")
}
