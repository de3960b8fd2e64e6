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

package scenario

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/client"
	"mynewt.apache.org/gattsim/gattx/server"
	"mynewt.apache.org/gattsim/gattx/sim"
	"mynewt.apache.org/gattsim/gattx/xport"
)

type RunnerCfg struct {
	// Replaces the simulated client transport.  Server steps are skipped.
	ClientXport xport.ClientXport

	// Wraps the client transport before the client takes it.
	WrapXport func(xp xport.ClientXport) xport.ClientXport

	StepTimeout time.Duration

	// Called after each step.
	OnStep func(res StepResult)
}

func NewRunnerCfg() RunnerCfg {
	return RunnerCfg{
		StepTimeout: 5 * time.Second,
	}
}

type StepResult struct {
	Index   int
	Step    Step
	Status  bledefs.OperationStatus
	Value   []byte
	Num     int
	Phy     bledefs.PhyInfo
	Skipped bool
	Err     error
}

func (r StepResult) String() string {
	s := fmt.Sprintf("[%d] %s:", r.Index, r.Step)
	switch {
	case r.Err != nil:
		return s + " FAILED: " + r.Err.Error()
	case r.Skipped:
		return s + " skipped"
	}

	s += " " + r.Status.String()
	if r.Value != nil {
		s += fmt.Sprintf(" value=%x", r.Value)
	}
	switch r.Step.Op {
	case STEP_REQUEST_MTU:
		s += fmt.Sprintf(" mtu=%d", r.Num)
	case STEP_READ_RSSI:
		s += fmt.Sprintf(" rssi=%d", r.Num)
	case STEP_SET_PHY, STEP_READ_PHY:
		s += fmt.Sprintf(" tx=%s rx=%s", r.Phy.TxPhy, r.Phy.RxPhy)
	}
	return s
}

// Runner executes a scenario against a simulated server.  It is not safe
// for concurrent use.
type Runner struct {
	sc   *Scenario
	cfg  RunnerCfg
	svcs []*bledefs.BleSvc

	sim *sim.Simulator
	sx  *sim.ServerXport
	cx  *sim.ClientXport
	gs  *server.GattServer
	gc  *client.GattClient

	notifs map[bledefs.AttrId]*client.NotificationWatcher
}

func NewRunner(sc *Scenario, cfg RunnerCfg) (*Runner, error) {
	svcs, err := BuildServices(sc.Services)
	if err != nil {
		return nil, err
	}

	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = NewRunnerCfg().StepTimeout
	}

	return &Runner{
		sc:     sc,
		cfg:    cfg,
		svcs:   svcs,
		notifs: map[bledefs.AttrId]*client.NotificationWatcher{},
	}, nil
}

func (r *Runner) Client() *client.GattClient {
	return r.gc
}

func (r *Runner) Server() *server.GattServer {
	return r.gs
}

// Simulator returns nil when the client runs against another transport.
func (r *Runner) Simulator() *sim.Simulator {
	return r.sim
}

// Start brings up the server and the client.  The link stays down until a
// connect step.
func (r *Runner) Start(ctx context.Context) error {
	if r.gc != nil {
		return errors.New("runner already started")
	}

	xp := r.cfg.ClientXport
	if xp == nil {
		opts, err := r.sc.Connect.Options()
		if err != nil {
			return err
		}

		r.sim = sim.NewSimulator()
		w := r.sim.WatchAdvertised()
		defer w.Stop()

		r.sx = sim.NewServerXport(r.sim, r.svcs)
		r.gs = server.NewGattServer(r.sx)
		if err := r.gs.Start(); err != nil {
			return err
		}

		dev, err := w.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "server did not advertise")
		}

		r.cx = sim.NewClientXport(r.sim, dev, opts)
		xp = r.cx
	}

	if r.cfg.WrapXport != nil {
		xp = r.cfg.WrapXport(xp)
	}

	r.gc = client.NewGattClient(xp)
	return r.gc.Start()
}

// Run executes every step in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	if r.gc == nil {
		if err := r.Start(ctx); err != nil {
			return nil, err
		}
	}

	var results []StepResult
	for i, step := range r.sc.Steps {
		res := r.RunStep(ctx, step)
		res.Index = i
		results = append(results, res)

		log.Debugf("scenario: %s", res)
		if r.cfg.OnStep != nil {
			r.cfg.OnStep(res)
		}

		if res.Err != nil {
			return results, errors.Wrapf(res.Err, "step %d (%s)", i, step)
		}
	}

	return results, nil
}

func (r *Runner) Close() {
	for _, w := range r.notifs {
		w.Stop()
	}
	r.notifs = map[bledefs.AttrId]*client.NotificationWatcher{}

	if r.gc != nil {
		r.gc.Close()
	}
	if r.gs != nil {
		r.gs.Close()
	}
	if r.sim != nil {
		r.sim.Shutdown()
	}
}

// RunStep executes a single step.
func (r *Runner) RunStep(ctx context.Context, step Step) StepResult {
	res := StepResult{Step: step}

	if IsServerStep(step.Op) && r.sim == nil {
		res.Skipped = true
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()

	if err := r.runStep(ctx, step, &res); err != nil {
		res.Err = err
		return res
	}

	if err := checkResult(step, res); err != nil {
		res.Err = err
	}
	return res
}

func checkResult(step Step, res StepResult) error {
	want := bledefs.GATT_SUCCESS
	if step.Status != "" {
		var err error
		want, err = bledefs.OperationStatusFromString(step.Status)
		if err != nil {
			return err
		}
	}
	if res.Status != want {
		return errors.Errorf("status %s; want %s", res.Status, want)
	}

	if step.Expect != "" {
		exp, err := parseHex(step.Expect)
		if err != nil {
			return err
		}
		if !bytes.Equal(res.Value, exp) {
			return errors.Errorf("value %x; want %x", res.Value, exp)
		}
	}

	return nil
}

func (r *Runner) findChr(step Step) (*client.ClientCharacteristic, error) {
	uuid, err := bledefs.ParseUuid(step.Chr)
	if err != nil {
		return nil, err
	}

	inst := bledefs.ANY_INSTANCE
	if step.Inst != nil {
		inst = *step.Inst
	}

	svcs := r.gc.Services()
	if svcs == nil {
		return nil, errors.New("services not discovered")
	}

	ch := svcs.FindCharacteristic(uuid, inst)
	if ch == nil {
		return nil, errors.Errorf("no characteristic %s", step.Chr)
	}
	return ch, nil
}

func (r *Runner) findDsc(step Step) (*client.ClientDescriptor, error) {
	ch, err := r.findChr(step)
	if err != nil {
		return nil, err
	}

	uuid, err := bledefs.ParseUuid(step.Dsc)
	if err != nil {
		return nil, err
	}

	d := ch.FindDescriptor(uuid, bledefs.ANY_INSTANCE)
	if d == nil {
		return nil, errors.Errorf("no descriptor %s on %s", step.Dsc,
			step.Chr)
	}
	return d, nil
}

// waitState blocks until the client reports the specified state.
func waitState(ctx context.Context, w *client.StateWatcher,
	state bledefs.ConnectionState) error {

	for {
		s, err := w.Next(ctx)
		if err != nil {
			return err
		}
		if s.State == state {
			return nil
		}
	}
}

func (r *Runner) runStep(ctx context.Context, step Step,
	res *StepResult) error {

	switch step.Op {
	case STEP_CONNECT:
		s, err := r.gc.Connect(ctx)
		if err != nil {
			return err
		}
		if s.State != bledefs.CONN_STATE_CONNECTED {
			return errors.Errorf("connect failed: %s", s)
		}
		if _, err := r.gc.WaitForServices(ctx); err != nil {
			return err
		}
		res.Status = r.gc.DiscoveryStatus()

		if r.sc.Connect.Mtu != 0 {
			mr, err := r.gc.RequestMtu(ctx, r.sc.Connect.Mtu)
			if err != nil {
				return err
			}
			res.Num = mr.Mtu
		}
		return nil

	case STEP_DISCONNECT:
		return r.gc.Disconnect(ctx)

	case STEP_REQUEST_MTU:
		mr, err := r.gc.RequestMtu(ctx, step.Mtu)
		if err != nil {
			return err
		}
		res.Status = mr.Status
		res.Num = mr.Mtu
		return nil

	case STEP_READ_RSSI:
		rr, err := r.gc.ReadRssi(ctx)
		if err != nil {
			return err
		}
		res.Status = rr.Status
		res.Num = rr.Rssi
		return nil

	case STEP_SET_PHY:
		tx, err := bledefs.BlePhyFromString(step.TxPhy)
		if err != nil {
			return err
		}
		rx, err := bledefs.BlePhyFromString(step.RxPhy)
		if err != nil {
			return err
		}
		opt := bledefs.BLE_PHY_OPT_NO_PREFERRED
		if step.PhyOpt != "" {
			opt, err = bledefs.PhyOptionFromString(step.PhyOpt)
			if err != nil {
				return err
			}
		}

		pr, err := r.gc.SetPhy(ctx, tx, rx, opt)
		if err != nil {
			return err
		}
		res.Status = pr.Status
		res.Phy = pr.Phy
		return nil

	case STEP_READ_PHY:
		pr, err := r.gc.ReadPhy(ctx)
		if err != nil {
			return err
		}
		res.Status = pr.Status
		res.Phy = pr.Phy
		return nil

	case STEP_READ:
		ch, err := r.findChr(step)
		if err != nil {
			return err
		}
		rr, err := ch.Read(ctx)
		if err != nil {
			return err
		}
		res.Status = rr.Status
		res.Value = rr.Value
		return nil

	case STEP_WRITE:
		ch, err := r.findChr(step)
		if err != nil {
			return err
		}
		val, err := parseHex(step.Value)
		if err != nil {
			return err
		}
		wt := bledefs.BLE_WRITE_TYPE_DEFAULT
		if step.NoResponse {
			wt = bledefs.BLE_WRITE_TYPE_NO_RESPONSE
		}
		wr, err := ch.Write(ctx, val, wt)
		if err != nil {
			return err
		}
		res.Status = wr.Status
		return nil

	case STEP_READ_DSC:
		d, err := r.findDsc(step)
		if err != nil {
			return err
		}
		rr, err := d.Read(ctx)
		if err != nil {
			return err
		}
		res.Status = rr.Status
		res.Value = rr.Value
		return nil

	case STEP_WRITE_DSC:
		d, err := r.findDsc(step)
		if err != nil {
			return err
		}
		val, err := parseHex(step.Value)
		if err != nil {
			return err
		}
		wr, err := d.Write(ctx, val)
		if err != nil {
			return err
		}
		res.Status = wr.Status
		return nil

	case STEP_ENABLE_NOTIFY:
		ch, err := r.findChr(step)
		if err != nil {
			return err
		}
		if r.notifs[ch.Chr().Id()] == nil {
			r.notifs[ch.Chr().Id()] = ch.Notifications()
		}
		wr, err := ch.EnableNotifications(ctx)
		if err != nil {
			return err
		}
		res.Status = wr.Status
		return nil

	case STEP_DISABLE_NOTIFY:
		ch, err := r.findChr(step)
		if err != nil {
			return err
		}
		wr, err := ch.DisableNotifications(ctx)
		if err != nil {
			return err
		}
		if w := r.notifs[ch.Chr().Id()]; w != nil {
			w.Stop()
			delete(r.notifs, ch.Chr().Id())
		}
		res.Status = wr.Status
		return nil

	case STEP_WAIT_NOTIFY:
		ch, err := r.findChr(step)
		if err != nil {
			return err
		}
		w := r.notifs[ch.Chr().Id()]
		if w == nil {
			return errors.Errorf("notifications not enabled for %s",
				step.Chr)
		}
		val, err := w.Next(ctx)
		if err != nil {
			return err
		}
		res.Value = val
		return nil

	default:
		return r.runServerStep(ctx, step, res)
	}
}

func (r *Runner) runServerStep(ctx context.Context, step Step,
	res *StepResult) error {

	dev := r.cx.Device()

	switch step.Op {
	case STEP_NOTIFY:
		uuid, err := bledefs.ParseUuid(step.Chr)
		if err != nil {
			return err
		}
		inst := bledefs.ANY_INSTANCE
		if step.Inst != nil {
			inst = *step.Inst
		}
		val, err := parseHex(step.Value)
		if err != nil {
			return err
		}
		return r.gs.Notify(bledefs.AttrId{
			Uuid:       uuid,
			InstanceId: inst,
		}, val)

	case STEP_LINK_LOSS:
		w := r.gc.WatchState()
		defer w.Stop()

		if err := r.sim.SimulateLinkLoss(dev); err != nil {
			return err
		}
		return waitState(ctx, w, bledefs.CONN_STATE_DISCONNECTED)

	case STEP_RECONNECT:
		w := r.gc.WatchState()
		defer w.Stop()

		if err := r.sim.SimulateReconnect(dev); err != nil {
			return err
		}
		return waitState(ctx, w, bledefs.CONN_STATE_CONNECTED)

	case STEP_SERVICE_CHANGED:
		w := r.gc.WatchServices()
		defer w.Stop()

		// The first value is the current table.
		if _, err := w.Next(ctx); err != nil {
			return err
		}
		if err := r.sim.SimulateServiceChanged(r.sx.Device()); err != nil {
			return err
		}
		_, err := w.Next(ctx)
		return err

	case STEP_SERVER_DISCONNECT:
		conn := r.gs.Connection(dev)
		if conn == nil {
			return errors.Errorf("%s is not connected", dev)
		}

		w := r.gc.WatchState()
		defer w.Stop()

		if err := conn.Disconnect(); err != nil {
			return err
		}
		return waitState(ctx, w, bledefs.CONN_STATE_DISCONNECTED)

	case STEP_SET_RSSI:
		return r.sim.SetRssi(dev, step.Rssi)

	default:
		return errors.Errorf("unknown op \"%s\"", step.Op)
	}
}
