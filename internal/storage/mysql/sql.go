package mysql

import "strings"

// Queries name the tables as {reviews} and {votes}; New substitutes the
// configured names.

const reviewCols = "id, title, review, category, rating, image_url, author_id, status, likes, dislikes, created_at"

const listAllSQL = `
SELECT ` + reviewCols + `
FROM {reviews}
ORDER BY created_at DESC, id
`

const listByStatusSQL = `
SELECT ` + reviewCols + `
FROM {reviews}
WHERE status = ?
ORDER BY created_at DESC, id
`

const getReviewSQL = `
SELECT ` + reviewCols + `
FROM {reviews}
WHERE id = ?
`

const insertReviewSQL = `
INSERT INTO {reviews}
  (id, title, review, category, rating, image_url, author_id, status, likes, dislikes, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateReviewSQL = `
UPDATE {reviews}
SET title = ?, review = ?, category = ?, rating = ?, image_url = ?
WHERE id = ?
`

const existsSQL = `SELECT 1 FROM {reviews} WHERE id = ?`

const deleteVotesSQL = `DELETE FROM {votes} WHERE review_id = ?`

const deleteReviewSQL = `DELETE FROM {reviews} WHERE id = ?`

// Row lock serialises every vote on one review.
const lockTallySQL = `SELECT likes, dislikes FROM {reviews} WHERE id = ? FOR UPDATE`

const getVoteSQL = `SELECT vote_type FROM {votes} WHERE review_id = ? AND user_ip = ?`

const upsertVoteSQL = `
INSERT INTO {votes} (id, review_id, user_ip, vote_type)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE vote_type = VALUES(vote_type)
`

const bumpTallySQL = `
UPDATE {reviews}
SET likes    = GREATEST(CAST(likes AS SIGNED) + ?, 0),
    dislikes = GREATEST(CAST(dislikes AS SIGNED) + ?, 0)
WHERE id = ?
`

const countVotesSQL = `
SELECT
  COALESCE(SUM(vote_type = 'like'), 0),
  COALESCE(SUM(vote_type = 'dislike'), 0)
FROM {votes}
WHERE review_id = ?
`

const setTallySQL = `UPDATE {reviews} SET likes = ?, dislikes = ? WHERE id = ?`

type queries struct {
	listAll, listByStatus, get, insert, update, exists string
	deleteVotes, deleteReview                           string
	lockTally, getVote, upsertVote, bumpTally           string
	countVotes, setTally                                string
}

func newQueries(reviews, votes string) queries {
	r := strings.NewReplacer("{reviews}", "`"+reviews+"`", "{votes}", "`"+votes+"`")
	return queries{
		listAll:      r.Replace(listAllSQL),
		listByStatus: r.Replace(listByStatusSQL),
		get:          r.Replace(getReviewSQL),
		insert:       r.Replace(insertReviewSQL),
		update:       r.Replace(updateReviewSQL),
		exists:       r.Replace(existsSQL),
		deleteVotes:  r.Replace(deleteVotesSQL),
		deleteReview: r.Replace(deleteReviewSQL),
		lockTally:    r.Replace(lockTallySQL),
		getVote:      r.Replace(getVoteSQL),
		upsertVote:   r.Replace(upsertVoteSQL),
		bumpTally:    r.Replace(bumpTallySQL),
		countVotes:   r.Replace(countVotesSQL),
		setTally:     r.Replace(setTallySQL),
	}
}
