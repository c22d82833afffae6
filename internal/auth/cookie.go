package auth

import (
	"net/http"
	"time"
)

const userCookie = "_admin"

func VerifyUser(r *http.Request, secret []byte) (string, error) {
	cookie, err := r.Cookie(userCookie)
	if err != nil {
		return "", err
	}
	user, err := GetUser(cookie.Value, secret)
	if err != nil {
		return "", err
	}
	return user, nil
}

func SetAuthCookie(username string, w http.ResponseWriter, secret []byte, TTLSeconds int) error {

	token, err := BuildJWTString(username, secret, time.Duration(TTLSeconds)*time.Second)
	if err != nil {
		return err
	}
	cookie := &http.Cookie{Name: userCookie, Value: token, MaxAge: TTLSeconds, HttpOnly: true, Path: "/"}
	http.SetCookie(w, cookie)
	return nil
}
