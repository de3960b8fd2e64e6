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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/newt/util"
)

var GattsimLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	gsCmd := &cobra.Command{
		Use:   gsutil.ToolInfo.ExeName,
		Short: gsutil.ToolInfo.ShortName + " simulates BLE GATT sessions",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			GattsimLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				gsUsage(nil, util.ChildNewtError(err))
			}

			err = util.Init(GattsimLogLevel, "", util.VERBOSITY_DEFAULT)
			if err != nil {
				gsUsage(nil, err)
			}
			gattutil.SetLogLevel(GattsimLogLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	gsCmd.PersistentFlags().StringVarP(&gsutil.ConnProfile, "conn", "c", "",
		"connection profile to use")

	gsCmd.PersistentFlags().Float64VarP(&gsutil.Timeout, "timeout", "t", 10.0,
		"per-step timeout in seconds (partial seconds allowed)")

	gsCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	gsCmd.PersistentFlags().StringVar(&gsutil.DeviceName, "name",
		"", "name of target BLE device; overrides profile setting")

	gsCmd.PersistentFlags().StringVar(&gsutil.ConnString, "connstring", "",
		"Connection key-value pairs to use instead of using the profile's "+
			"connstring")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + gsutil.ToolInfo.ShortName + " version number",
		Example: "  " + gsutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				gsutil.ToolInfo.LongName,
				gsutil.ToolInfo.VersionString)
		},
	}
	gsCmd.AddCommand(versCmd)

	gsCmd.AddCommand(runCmd())
	gsCmd.AddCommand(traceCmd())
	gsCmd.AddCommand(shellCmd())
	gsCmd.AddCommand(connProfileCmd())
	gsCmd.AddCommand(bleCmd())

	return gsCmd
}
