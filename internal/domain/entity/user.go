package entity

// User is a directory entry with its place in the org tree
type User struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	Title           string `json:"title"`
	ManagerID       string `json:"manager_id,omitempty"`
	ApprovalLevel   int    `json:"approval_level"`
	IsFinalApprover bool   `json:"is_final_approver"`
	Theater         string `json:"theater,omitempty"`
	Email           string `json:"email,omitempty"`
}

// Account is a customer account requests are raised against
type Account struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Theater         string `json:"theater"`
	IndustrySegment string `json:"industry_segment"`
}

// FinalApprover names the user who closes the chain for a theater
type FinalApprover struct {
	Theater string `json:"theater"`
	UserID  string `json:"user_id"`
}
