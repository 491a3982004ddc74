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

// Package worker runs registered workflows and activities.
//
//	w, err := worker.NewWorker(c, worker.Options{TaskQueue: "chains"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = w.RegisterWorkflow(MyWorkflow)
//	_ = w.RegisterActivity(MyActivity)
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// A worker polls both task kinds for the kinds it has registrations for, so
// workflow and activity workers can be scaled separately by registering only
// one side. Run returns when ctx is canceled.
package worker
