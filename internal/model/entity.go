package model

import (
	"time"
)

// Workspace roles
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Invitation states
const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationDeclined = "DECLINED"
)

// Notification types
const (
	NotificationInvitation = "INVITATION"
	NotificationSystem     = "SYSTEM"
)

// User account
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Workspaces []WorkspaceMember `gorm:"foreignKey:UserID" json:"workspaces,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Workspace a shared space owned by one user
type Workspace struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	OwnerID   int64     `gorm:"not null" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Owner   User              `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members []WorkspaceMember `gorm:"foreignKey:WorkspaceID" json:"members,omitempty"`
	Boards  []Board           `gorm:"foreignKey:WorkspaceID" json:"boards,omitempty"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// WorkspaceMember membership row with role
type WorkspaceMember struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64     `gorm:"not null;uniqueIndex:idx_workspace_user" json:"workspace_id"`
	UserID      int64     `gorm:"not null;uniqueIndex:idx_workspace_user" json:"user_id"`
	Role        string    `gorm:"type:varchar(20);default:'MEMBER'" json:"role"` // OWNER, ADMIN, MEMBER
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// Relations
	Workspace Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

// Board a shared whiteboard inside a workspace
type Board struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64     `gorm:"not null;index" json:"workspace_id"`
	Title       string    `gorm:"type:varchar(120);default:'Untitled Board'" json:"title"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Workspace Workspace      `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	Segments  []BoardSegment `gorm:"foreignKey:BoardID" json:"segments,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardSegment one persisted line segment.
// Rows are append-only in server-accepted order; a board clear hard
// deletes every row for the board.
type BoardSegment struct {
	ID      int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID int64   `gorm:"not null;index:idx_board_segments_board" json:"board_id"`
	X0      float64 `json:"x0"`
	Y0      float64 `json:"y0"`
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	Color   string  `gorm:"type:varchar(20);default:'#000000'" json:"color"`
	Width   float64 `gorm:"default:2" json:"width"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BoardSegment) TableName() string {
	return "board_segments"
}

// Message workspace chat message
type Message struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64     `gorm:"not null;index:idx_messages_workspace_created" json:"workspace_id"`
	SenderID    int64     `gorm:"not null" json:"sender_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_messages_workspace_created" json:"created_at"`

	// Relations
	Sender User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Invitation pending workspace invite
type Invitation struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkspaceID int64     `gorm:"not null" json:"workspace_id"`
	InviterID   int64     `gorm:"not null" json:"inviter_id"`
	InviteeID   int64     `gorm:"not null;index" json:"invitee_id"`
	Status      string    `gorm:"type:varchar(20);default:'PENDING'" json:"status"` // PENDING, ACCEPTED, DECLINED
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Workspace Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	Inviter   User      `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
}

func (Invitation) TableName() string {
	return "invitations"
}

// Notification per-user notification row
type Notification struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	Type         string    `gorm:"type:varchar(30);not null" json:"type"` // INVITATION, SYSTEM
	Text         string    `gorm:"type:text;not null" json:"text"`
	InvitationID *int64    `json:"invitation_id,omitempty"`
	IsRead       bool      `gorm:"default:false" json:"is_read"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
