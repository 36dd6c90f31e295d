package message

// Ask is the subtype of an ask message.
type Ask string

const (
	AskFollowup                  Ask = "followup"
	AskCommand                   Ask = "command"
	AskCommandOutput             Ask = "command_output"
	AskCompletionResult          Ask = "completion_result"
	AskTool                      Ask = "tool"
	AskAPIReqFailed              Ask = "api_req_failed"
	AskResumeTask                Ask = "resume_task"
	AskResumeCompletedTask       Ask = "resume_completed_task"
	AskMistakeLimitReached       Ask = "mistake_limit_reached"
	AskBrowserActionLaunch       Ask = "browser_action_launch"
	AskUseMCPServer              Ask = "use_mcp_server"
	AskAutoApprovalMaxReqReached Ask = "auto_approval_max_req_reached"
)

// Say is the subtype of a say message.
type Say string

const (
	SayTask                    Say = "task"
	SayText                    Say = "text"
	SayReasoning               Say = "reasoning"
	SayError                   Say = "error"
	SayAPIReqStarted           Say = "api_req_started"
	SayAPIReqFinished          Say = "api_req_finished"
	SayAPIReqRetried           Say = "api_req_retried"
	SayCommandOutput           Say = "command_output"
	SayCompletionResult        Say = "completion_result"
	SayUserFeedback            Say = "user_feedback"
	SayTool                    Say = "tool"
	SayBrowserAction           Say = "browser_action"
	SayMCPServerResponse       Say = "mcp_server_response"
	SayCheckpointSaved         Say = "checkpoint_saved"
	SayShellIntegrationWarning Say = "shell_integration_warning"
	SayDiffError               Say = "diff_error"
)

// AskCategory groups ask subtypes by what the engine expects back.
type AskCategory int

const (
	// AskCategoryUnknown is an ask subtype this package does not know.
	AskCategoryUnknown AskCategory = iota
	// AskCategoryApproval asks for permission to perform an action.
	AskCategoryApproval
	// AskCategoryQuestion asks for a free-text answer.
	AskCategoryQuestion
	// AskCategoryAcknowledge asks to continue after streamed output.
	AskCategoryAcknowledge
	// AskCategoryCompletion announces the task result; no response is needed.
	AskCategoryCompletion
	// AskCategoryResume offers to resume an interrupted task.
	AskCategoryResume
	// AskCategoryFailure reports a failure the engine cannot recover from alone.
	AskCategoryFailure
)

func (c AskCategory) String() string {
	switch c {
	case AskCategoryApproval:
		return "approval"
	case AskCategoryQuestion:
		return "question"
	case AskCategoryAcknowledge:
		return "acknowledge"
	case AskCategoryCompletion:
		return "completion"
	case AskCategoryResume:
		return "resume"
	case AskCategoryFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Settles reports whether asks of this category end the running task
// until someone responds.
func (c AskCategory) Settles() bool {
	return c == AskCategoryResume || c == AskCategoryFailure
}

// Category classifies the ask subtype.
func (a Ask) Category() AskCategory {
	switch a {
	case AskCommand, AskTool, AskUseMCPServer, AskBrowserActionLaunch, AskAutoApprovalMaxReqReached:
		return AskCategoryApproval
	case AskFollowup:
		return AskCategoryQuestion
	case AskCommandOutput:
		return AskCategoryAcknowledge
	case AskCompletionResult:
		return AskCategoryCompletion
	case AskResumeTask, AskResumeCompletedTask:
		return AskCategoryResume
	case AskAPIReqFailed, AskMistakeLimitReached:
		return AskCategoryFailure
	default:
		return AskCategoryUnknown
	}
}

// NeedsResponse reports whether an ask of this subtype enters the
// pending-ask set. Completion results are terminal announcements.
func (a Ask) NeedsResponse() bool {
	return a.Category() != AskCategoryCompletion
}
