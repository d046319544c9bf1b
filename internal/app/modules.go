package app

// Module names checked against the authorizer.
const (
	ModuleSearchQuiz    = "SearchQuiz"
	ModuleDetailQuiz    = "DetailQuiz"
	ModuleCreateQuiz    = "CreateQuiz"
	ModuleEditQuiz      = "EditQuiz"
	ModuleDeleteQuiz    = "DeleteQuiz"
	ModuleTakeQuiz      = "TakeQuiz"
	ModuleDetailHistory = "DetailHistory"
)
