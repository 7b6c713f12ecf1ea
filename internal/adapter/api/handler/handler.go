package handler

import (
	"speak/internal/usecase"
)

var (
	authHandler *AuthHandler
	postHandler *PostHandler
	chatHandler *ChatHandler
)

func Setup(
	authUseCase *usecase.AuthUseCase,
	postUseCase *usecase.PostUseCase,
	chatUseCase *usecase.ChatUseCase,
) {
	authHandler = NewAuthHandler(authUseCase)
	postHandler = NewPostHandler(postUseCase)
	chatHandler = NewChatHandler(chatUseCase)
}

func GetAuthHandler() *AuthHandler {
	return authHandler
}

func GetPostHandler() *PostHandler {
	return postHandler
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}
