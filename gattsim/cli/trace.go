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
	"os"

	"github.com/spf13/cobra"

	"mynewt.apache.org/gattsim/gattx/trace"
	"mynewt.apache.org/newt/util"
)

func traceDumpCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		gsUsage(cmd, util.NewNewtError("Need trace file"))
	}

	t, err := trace.ReadFile(args[0])
	if err != nil {
		gsUsage(nil, util.ChildNewtError(err))
	}

	trace.Dump(os.Stdout, t)
}

func traceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "trace <trace-file>",
		Short:   "Display the contents of a recorded trace",
		Example: "  gattsim trace hrm.trace",
		Run:     traceDumpCmd,
	}
}
