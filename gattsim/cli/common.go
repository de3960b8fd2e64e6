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
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/gattsim/gattsim/config"
	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/newt/util"
)

var globalRunner *scenario.Runner
var globalRunnerMtx sync.Mutex

var onExit func()

func GsSetOnExit(fn func()) {
	onExit = fn
}

func gsUsage(cmd *cobra.Command, err error) {
	if err != nil {
		sErr, ok := err.(*util.NewtError)
		if !ok {
			sErr = util.ChildNewtError(err)
		}
		log.Debugf("%s", sErr.StackTrace)
		fmt.Fprintf(os.Stderr, "Error: %s\n", sErr.Text)
	}

	if cmd != nil {
		fmt.Printf("\n")
		fmt.Printf("%s - ", cmd.Name())
		cmd.Help()
	}

	if onExit != nil {
		onExit()
	}
	os.Exit(1)
}

// GetRunnerIfOpen returns the active scenario runner, if any.
func GetRunnerIfOpen() (*scenario.Runner, error) {
	globalRunnerMtx.Lock()
	defer globalRunnerMtx.Unlock()

	if globalRunner == nil {
		return nil, fmt.Errorf("runner not initialized")
	}

	return globalRunner, nil
}

func setGlobalRunner(r *scenario.Runner) {
	globalRunnerMtx.Lock()
	defer globalRunnerMtx.Unlock()

	globalRunner = r
}

func getConnProfile() (*config.ConnProfile, error) {
	return config.GlobalConnProfileMgr().GetConnProfile(gsutil.ConnProfile)
}

// loadScenario reads a scenario file and applies the connection profile and
// connstring overrides.
func loadScenario(path string) (*scenario.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	if gsutil.ConnProfile != "" {
		cp, err := getConnProfile()
		if err != nil {
			return nil, err
		}
		if cp.Type != config.CONN_TYPE_SIM {
			return nil, util.FmtNewtError(
				"connection profile \"%s\" is not a sim profile", cp.Name)
		}
		if err := config.ApplySimConnString(&sc.Connect,
			cp.ConnString); err != nil {

			return nil, err
		}
	}

	if err := config.ApplySimConnString(&sc.Connect,
		gsutil.ConnString); err != nil {

		return nil, err
	}
	if gsutil.DeviceName != "" {
		sc.Connect.Name = gsutil.DeviceName
	}

	return sc, nil
}

func newRunnerCfg() scenario.RunnerCfg {
	cfg := scenario.NewRunnerCfg()
	if t := gsutil.StepTimeout(); t > 0 {
		cfg.StepTimeout = t
	}
	return cfg
}

// startRunner builds and starts a runner and makes it the one closed on
// exit.
func startRunner(sc *scenario.Scenario,
	cfg scenario.RunnerCfg) (*scenario.Runner, error) {

	r, err := scenario.NewRunner(sc, cfg)
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StepTimeout)
	defer cancel()

	if err := r.Start(ctx); err != nil {
		r.Close()
		return nil, util.ChildNewtError(err)
	}

	setGlobalRunner(r)
	return r, nil
}

func closeRunner(r *scenario.Runner) {
	setGlobalRunner(nil)
	r.Close()
}
