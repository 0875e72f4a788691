// Command roadmap turns prioritized backlog items into a sprint-by-sprint
// delivery plan: sequencing by dependencies, packing by team capacity, and
// grouping by theme, with milestones derived from the schedule.
package main

func main() {
	Execute()
}
