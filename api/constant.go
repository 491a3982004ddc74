// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

const (
	WorkflowHistoryStream = "WORKFLOW_HISTORY"
	WorkflowTasksStream   = "WORKFLOW_TASKS"
	ActivityTasksStream   = "ACTIVITY_TASKS"
)

const (
	HistorySubjectPrefix = "history"
	TasksSubjectPrefix   = "tasks"
)

const (
	HistoryPublishSubjectPattern = HistorySubjectPrefix + ".%s" // workflowID

	// tasks.<queue>.workflow / tasks.<queue>.activity
	WorkflowTaskPublishSubjectPattern = TasksSubjectPrefix + ".%s.workflow"
	ActivityTaskPublishSubjectPattern = TasksSubjectPrefix + ".%s.activity"
)

const (
	HistoryFilterSubjectPattern = HistorySubjectPrefix + ".>"

	WorkflowTasksFilterSubjectPattern = TasksSubjectPrefix + ".*.workflow"
	ActivityTasksFilterSubjectPattern = TasksSubjectPrefix + ".*.activity"
)

const (
	WorkflowTaskWorkerConsumer = "worker-workflow-tasks"
	ActivityTaskWorkerConsumer = "worker-activity-tasks"
)

const (
	WorkflowResultBucket = "workflow-result"
)

const EventNameHeader = "Durable-Event-Name"

// DefaultTaskQueue is used when neither the caller nor the worker names one.
const DefaultTaskQueue = "default"
