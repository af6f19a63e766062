package domain

type UserId = int64

type User struct {
	Id    UserId `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}
