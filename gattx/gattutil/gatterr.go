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

package gattutil

import (
	"fmt"

	"github.com/pkg/errors"

	"mynewt.apache.org/gattsim/gattx/bledefs"
)

// Indicates that the link went down while an operation was outstanding.
type BleDisconnectedError struct {
	Text   string
	Status bledefs.ConnectionStatus
}

func NewBleDisconnectedError(status bledefs.ConnectionStatus,
	text string) *BleDisconnectedError {

	return &BleDisconnectedError{
		Status: status,
		Text:   text,
	}
}

func (e *BleDisconnectedError) Error() string {
	return e.Text
}

func IsBleDisconnected(err error) bool {
	_, ok := errors.Cause(err).(*BleDisconnectedError)
	return ok
}

// Indicates a command issued through a handle that has been released.
type ClosedError struct {
	Text string
}

func NewClosedError(text string) *ClosedError {
	return &ClosedError{
		Text: text,
	}
}

func FmtClosedError(format string, args ...interface{}) *ClosedError {
	return NewClosedError(fmt.Sprintf(format, args...))
}

func (e *ClosedError) Error() string {
	return e.Text
}

func IsClosed(err error) bool {
	_, ok := errors.Cause(err).(*ClosedError)
	return ok
}

type NotConnectedError struct {
	Text string
}

func NewNotConnectedError(text string) *NotConnectedError {
	return &NotConnectedError{
		Text: text,
	}
}

func FmtNotConnectedError(format string,
	args ...interface{}) *NotConnectedError {

	return NewNotConnectedError(fmt.Sprintf(format, args...))
}

func (e *NotConnectedError) Error() string {
	return e.Text
}

func IsNotConnected(err error) bool {
	_, ok := errors.Cause(err).(*NotConnectedError)
	return ok
}

// Indicates a response for a request id that is not outstanding.
type RequestNotFoundError struct {
	RequestId int
}

func NewRequestNotFoundError(requestId int) *RequestNotFoundError {
	return &RequestNotFoundError{
		RequestId: requestId,
	}
}

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("no outstanding request with id %d", e.RequestId)
}

func IsRequestNotFound(err error) bool {
	_, ok := errors.Cause(err).(*RequestNotFoundError)
	return ok
}

type UnknownDeviceError struct {
	Text string
}

func NewUnknownDeviceError(text string) *UnknownDeviceError {
	return &UnknownDeviceError{text}
}

func FmtUnknownDeviceError(format string,
	args ...interface{}) *UnknownDeviceError {

	return NewUnknownDeviceError(fmt.Sprintf(format, args...))
}

func (e *UnknownDeviceError) Error() string {
	return e.Text
}

func IsUnknownDevice(err error) bool {
	_, ok := errors.Cause(err).(*UnknownDeviceError)
	return ok
}

// Represents a low-level transport error.
type XportError struct {
	Text string
}

func NewXportError(text string) *XportError {
	return &XportError{text}
}

func FmtXportError(format string, args ...interface{}) *XportError {
	return NewXportError(fmt.Sprintf(format, args...))
}

func (e *XportError) Error() string {
	return e.Text
}

func IsXport(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*XportError)
	return ok
}

// Indicates an attempt to transition to the already-current state.
type AlreadyError struct {
	Text string
}

func NewAlreadyError(text string) *AlreadyError {
	return &AlreadyError{text}
}

func (err *AlreadyError) Error() string {
	return err.Text
}

func IsAlready(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*AlreadyError)
	return ok
}

// Indicates that a replayed session diverged from its recording.
type TraceMismatchError struct {
	Text string
}

func NewTraceMismatchError(text string) *TraceMismatchError {
	return &TraceMismatchError{text}
}

func FmtTraceMismatchError(format string,
	args ...interface{}) *TraceMismatchError {

	return NewTraceMismatchError(fmt.Sprintf(format, args...))
}

func (err *TraceMismatchError) Error() string {
	return err.Text
}

func IsTraceMismatch(err error) bool {
	_, ok := errors.Cause(err).(*TraceMismatchError)
	return ok
}
