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
	"fmt"

	"github.com/spf13/cobra"

	"mynewt.apache.org/gattsim/gattsim/config"
	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/bll"
	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/gattsim/gattx/trace"
	"mynewt.apache.org/gattsim/gattx/xport"
	"mynewt.apache.org/newt/util"
)

// bllConnString picks the connstring from --connstring or the selected
// profile.
func bllConnString() (string, error) {
	if gsutil.ConnString != "" {
		return gsutil.ConnString, nil
	}
	if gsutil.ConnProfile == "" {
		return "", nil
	}

	cp, err := getConnProfile()
	if err != nil {
		return "", err
	}
	if cp.Type != config.CONN_TYPE_BLL {
		return "", util.FmtNewtError(
			"connection profile \"%s\" is not a ble profile", cp.Name)
	}

	return cp.ConnString, nil
}

func runBleCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		gsUsage(cmd, util.NewNewtError("Need scenario file"))
	}

	sc, err := scenario.Load(args[0])
	if err != nil {
		gsUsage(nil, util.ChildNewtError(err))
	}

	cs, err := bllConnString()
	if err != nil {
		gsUsage(nil, err)
	}

	bc, err := config.ParseBllConnString(cs)
	if err != nil {
		gsUsage(cmd, err)
	}

	xcfg, err := config.BuildBllXportCfg(bc)
	if err != nil {
		gsUsage(cmd, err)
	}

	if err := bll.InitDevice(xcfg.CtlrName); err != nil {
		gsUsage(nil, util.ChildNewtError(err))
	}
	defer bll.StopDevice()

	cfg := newRunnerCfg()
	cfg.ClientXport = bll.NewBllXport(xcfg)

	var rx *trace.RecordingXport
	if recordPath != "" {
		cfg.WrapXport = func(xp xport.ClientXport) xport.ClientXport {
			rx = trace.NewRecordingXport(xp)
			return rx
		}
	}

	runErr := runScenario(sc, cfg)

	if rx != nil {
		if err := trace.WriteFile(recordPath, rx.Trace()); err != nil {
			gsUsage(nil, util.ChildNewtError(err))
		}
		fmt.Printf("Trace written to %s\n", recordPath)
	}

	if runErr != nil {
		gsUsage(nil, runErr)
	}
}

func bleCmd() *cobra.Command {
	bleHelpText := "Run a scenario's client steps against a real peripheral " +
		"through the host's\nBLE controller.  Server steps are skipped.  " +
		"The peer is selected with a\nble connection profile, " +
		"--connstring or --name.\n"

	cmd := &cobra.Command{
		Use:   "ble <scenario-file> [flags]",
		Short: "Run a GATT scenario against a BLE device",
		Long:  bleHelpText,
		Example: "  gattsim ble hrm.yaml -c myhrm\n" +
			"  gattsim ble hrm.yaml --connstring " +
			"\"peer_id=00:11:22:33:44:55,conn_timeout=5\"",
		Run: runBleCmd,
	}

	cmd.PersistentFlags().StringVar(&recordPath, "record", "",
		"Record the client session to the specified trace file")

	return cmd
}
