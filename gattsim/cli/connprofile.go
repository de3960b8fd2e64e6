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
	"strings"

	"github.com/spf13/cobra"

	"mynewt.apache.org/gattsim/gattsim/config"
	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/newt/util"
)

func connProfileAddCmd(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		gsUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	cp := config.NewConnProfile()
	cp.Name = args[0]
	cp.Type = config.CONN_TYPE_NONE

	for _, vdef := range args[1:] {
		s := strings.SplitN(vdef, "=", 2)
		if len(s) != 2 {
			gsUsage(cmd, util.FmtNewtError("Invalid variable: %s", vdef))
		}

		switch s[0] {
		case "type":
			var err error
			cp.Type, err = config.ConnTypeFromString(s[1])
			if err != nil {
				gsUsage(cmd, err)
			}
		case "connstring":
			cp.ConnString = s[1]
		default:
			gsUsage(cmd, util.NewNewtError("Unknown variable "+s[0]))
		}
	}

	if cp.Type == config.CONN_TYPE_NONE {
		gsUsage(cmd, util.NewNewtError("Must specify a connection type"))
	}

	// Reject a connstring the transport would refuse later.
	var err error
	switch cp.Type {
	case config.CONN_TYPE_BLL:
		_, err = config.ParseBllConnString(cp.ConnString)
	case config.CONN_TYPE_SIM:
		err = config.ApplySimConnString(&scenario.ConnectSpec{},
			cp.ConnString)
	}
	if err != nil {
		gsUsage(cmd, err)
	}

	if err := config.GlobalConnProfileMgr().AddConnProfile(cp); err != nil {
		gsUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully added\n", cp.Name)
}

func connProfileShowCmd(cmd *cobra.Command, args []string) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	cpList, err := config.GlobalConnProfileMgr().GetConnProfileList()
	if err != nil {
		gsUsage(cmd, err)
	}

	found := false
	for _, cp := range cpList {
		if name != "" && cp.Name != name {
			continue
		}

		if !found {
			found = true
			fmt.Printf("Connection profiles: \n")
		}
		fmt.Printf("  %s: type=%s, connstring='%s'\n",
			cp.Name, config.ConnTypeToString(cp.Type), cp.ConnString)
	}

	if !found {
		if name == "" {
			fmt.Printf("No connection profiles found!\n")
		} else {
			fmt.Printf("No connection profiles found matching %s\n", name)
		}
	}
}

func connProfileDelCmd(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		gsUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	name := args[0]
	if err := config.GlobalConnProfileMgr().DeleteConnProfile(name); err != nil {
		gsUsage(cmd, err)
	}

	fmt.Printf("Connection profile %s successfully deleted.\n", name)
}

func connProfileCmd() *cobra.Command {
	cpCmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage " + gsutil.ToolInfo.ShortName + " connection profiles",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	addHelpText := "Add a connection profile.  Supported variables:\n"
	addHelpText += "  type=<sim|ble>\n"
	addHelpText += "  connstring=<key=value,...>\n"

	addCmd := &cobra.Command{
		Use:   "add <conn_profile> <varname=value ...> ",
		Short: "Add a " + gsutil.ToolInfo.ShortName + " connection profile",
		Long:  addHelpText,
		Example: "  " + gsutil.ToolInfo.ExeName +
			" conn add hrm type=ble connstring=\"peer_name=hrm1\"",
		Run: connProfileAddCmd,
	}
	cpCmd.AddCommand(addCmd)

	deleCmd := &cobra.Command{
		Use:   "delete <conn_profile>",
		Short: "Delete a " + gsutil.ToolInfo.ShortName + " connection profile",
		Run:   connProfileDelCmd,
	}
	cpCmd.AddCommand(deleCmd)

	showCmd := &cobra.Command{
		Use:   "show [conn_profile]",
		Short: "Show " + gsutil.ToolInfo.ShortName + " connection profiles",
		Run:   connProfileShowCmd,
	}
	cpCmd.AddCommand(showCmd)

	return cpCmd
}
