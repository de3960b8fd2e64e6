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
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"

	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/gattsim/gattx/trace"
	"mynewt.apache.org/gattsim/gattx/xport"
	"mynewt.apache.org/newt/util"
)

var recordPath string
var replayPath string

func printResults(results []scenario.StepResult) {
	for _, res := range results {
		fmt.Printf("%s\n", res)
	}
}

// runScenario executes every step of sc with a progress bar and prints the
// per-step results.
func runScenario(sc *scenario.Scenario, cfg scenario.RunnerCfg) error {
	bar := pb.StartNew(len(sc.Steps))
	bar.Prefix(sc.Name + " ")
	cfg.OnStep = func(res scenario.StepResult) {
		bar.Increment()
	}

	r, err := startRunner(sc, cfg)
	if err != nil {
		bar.Finish()
		return err
	}
	defer closeRunner(r)

	results, err := r.Run(context.Background())
	bar.Finish()

	printResults(results)
	if err != nil {
		return util.ChildNewtError(err)
	}

	fmt.Printf("%d steps passed\n", len(results))
	return nil
}

func runRunCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		gsUsage(cmd, util.NewNewtError("Need scenario file"))
	}
	if recordPath != "" && replayPath != "" {
		gsUsage(cmd, util.NewNewtError(
			"--record and --replay are mutually exclusive"))
	}

	sc, err := loadScenario(args[0])
	if err != nil {
		gsUsage(nil, err)
	}

	cfg := newRunnerCfg()

	var rx *trace.RecordingXport
	if recordPath != "" {
		cfg.WrapXport = func(xp xport.ClientXport) xport.ClientXport {
			rx = trace.NewRecordingXport(xp)
			return rx
		}
	}

	var rp *trace.ReplayXport
	if replayPath != "" {
		t, err := trace.ReadFile(replayPath)
		if err != nil {
			gsUsage(nil, util.ChildNewtError(err))
		}
		rp = trace.NewReplayXport(t)
		cfg.ClientXport = rp
	}

	runErr := runScenario(sc, cfg)

	// A failed run still leaves a useful trace.
	if rx != nil {
		if err := trace.WriteFile(recordPath, rx.Trace()); err != nil {
			gsUsage(nil, util.ChildNewtError(err))
		}
		fmt.Printf("Trace written to %s\n", recordPath)
	}

	if runErr != nil {
		gsUsage(nil, runErr)
	}

	if rp != nil && rp.Remaining() > 0 {
		gsUsage(nil, util.FmtNewtError(
			"scenario ended with %d unconsumed trace records",
			rp.Remaining()))
	}
}

func runCmd() *cobra.Command {
	runHelpText := "Run a scenario against a simulated GATT server.  With " +
		"--replay, the\nclient is driven by a recorded trace instead and " +
		"server steps are skipped.\n"

	cmd := &cobra.Command{
		Use:   "run <scenario-file> [flags]",
		Short: "Run a GATT scenario",
		Long:  runHelpText,
		Example: "  gattsim run hrm.yaml\n" +
			"  gattsim run hrm.yaml --record hrm.trace\n" +
			"  gattsim run hrm.yaml --replay hrm.trace",
		Run: runRunCmd,
	}

	cmd.PersistentFlags().StringVar(&recordPath, "record", "",
		"Record the client session to the specified trace file")
	cmd.PersistentFlags().StringVar(&replayPath, "replay", "",
		"Drive the client from the specified trace file")

	return cmd
}
