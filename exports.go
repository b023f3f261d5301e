/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sqlbind

import (
	"github.com/tomoncle/sqlbind/database"
	"github.com/tomoncle/sqlbind/model"
	"github.com/tomoncle/sqlbind/session"
)

// Enumerated re-exports so most applications only import this package.

type (
	Config        = database.Config
	EngineOptions = database.EngineOptions
	Engine        = database.Engine
	QueryRecord   = database.QueryRecord

	Session = session.Session
	Change  = session.Change

	Registry    = model.Registry
	ModelOption = model.Option
	Base        = model.Base
)

var (
	LoadConfig = database.LoadConfig

	WithBind  = model.WithBind
	WithTable = model.WithTable
)
