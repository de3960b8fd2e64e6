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
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/abiosoft/ishell.v2"

	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/newt/util"
)

// stepFromArgs builds a step from key=value shell arguments.
func stepFromArgs(op string, args []string) (scenario.Step, error) {
	step := scenario.Step{Op: op}

	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			return step, util.FmtNewtError("expected key=value; have %s", arg)
		}
		k, v := kv[0], kv[1]

		var err error
		switch k {
		case "chr":
			step.Chr = v
		case "inst":
			var inst int
			inst, err = cast.ToIntE(v)
			step.Inst = &inst
		case "dsc":
			step.Dsc = v
		case "value":
			step.Value = v
		case "expect":
			step.Expect = v
		case "status":
			step.Status = v
		case "no_response":
			step.NoResponse, err = cast.ToBoolE(v)
		case "mtu":
			step.Mtu, err = cast.ToIntE(v)
		case "rssi":
			step.Rssi, err = cast.ToIntE(v)
		case "tx_phy":
			step.TxPhy = v
		case "rx_phy":
			step.RxPhy = v
		case "phy_opt":
			step.PhyOpt = v
		default:
			return step, util.FmtNewtError("unknown key: %s", k)
		}
		if err != nil {
			return step, util.FmtNewtError("invalid %s: %s", k, v)
		}
	}

	sc := scenario.Scenario{Steps: []scenario.Step{step}}
	if err := sc.Validate(); err != nil {
		return step, err
	}

	return step, nil
}

func stepShellCmd(r *scenario.Runner, op string) *ishell.Cmd {
	return &ishell.Cmd{
		Name: op,
		Help: "Run a " + op + " step: " + op + " [key=value ...]",
		Func: func(c *ishell.Context) {
			step, err := stepFromArgs(op, c.Args)
			if err != nil {
				c.Println("Error:", err)
				return
			}

			res := r.RunStep(context.Background(), step)
			c.Println(res.String())
		},
	}
}

func printServices(c *ishell.Context, r *scenario.Runner) {
	cs := r.Client().Services()
	if cs == nil {
		c.Println("services not discovered")
		return
	}

	for _, svc := range cs.Services() {
		c.Printf("svc %s\n", svc.Svc().Id())
		for _, chr := range svc.Characteristics() {
			c.Printf("  chr %s flags=0x%02x\n",
				chr.Chr().Id(), int(chr.Chr().Flags))
			for _, dsc := range chr.Descriptors() {
				c.Printf("    dsc %s\n", dsc.Dsc().Id())
			}
		}
	}
}

func startShell(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		gsUsage(cmd, util.NewNewtError("Need scenario file"))
	}

	sc, err := loadScenario(args[0])
	if err != nil {
		gsUsage(nil, err)
	}

	r, err := startRunner(sc, newRunnerCfg())
	if err != nil {
		gsUsage(nil, err)
	}
	defer closeRunner(r)

	shell := ishell.New()
	shell.SetPrompt("gatt> ")

	shell.Println()
	shell.Println(" " + gsutil.ToolInfo.LongName + " shell")
	shell.Println("  Scenario:", sc.Name)
	shell.Println()

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "Print the client connection state",
		Func: func(c *ishell.Context) {
			c.Println(r.Client().State().String())
			c.Printf("mtu=%d phy=%s/%s\n", r.Client().Mtu(),
				r.Client().Phy().TxPhy, r.Client().Phy().RxPhy)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "services",
		Help: "Print the discovered service tree",
		Func: func(c *ishell.Context) {
			printServices(c, r)
		},
	})

	for _, op := range scenario.StepOps() {
		shell.AddCmd(stepShellCmd(r, op))
	}

	shell.Run()
	shell.Close()
}

func shellCmd() *cobra.Command {
	shellHelpText := "Start an interactive session against the server " +
		"described by a scenario\nfile.  The file's steps are ignored; " +
		"each step type is available as a\nshell command taking " +
		"key=value arguments.\n"

	return &cobra.Command{
		Use:     "shell <scenario-file>",
		Short:   "Run " + gsutil.ToolInfo.ShortName + " interactive mode",
		Long:    shellHelpText,
		Example: "  gattsim shell hrm.yaml\n  gatt> read chr=0x2a19",
		Run:     startShell,
	}
}
